package domain

// BuildKind selects how a working copy is built and run on the target
// host. Exactly one kind is chosen per run.
type BuildKind int

const (
	KindUnknown BuildKind = iota
	KindCompose
	KindDockerfile
)

func (k BuildKind) String() string {
	switch k {
	case KindCompose:
		return "compose"
	case KindDockerfile:
		return "dockerfile"
	default:
		return "unknown"
	}
}
