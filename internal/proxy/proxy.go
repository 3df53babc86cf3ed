// Package proxy installs per-project nginx server blocks on the target
// host and keeps the running proxy in sync with them.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/splax/deckhand/internal/remote"
)

// siteTemplate is the server block written for every deployed project.
// Traffic enters on port 80 and is handed to the application's loopback
// port; the upgrade headers keep websocket apps working behind the
// proxy, and the trailing location hides VCS and env files that a
// working copy may carry.
const siteTemplate = `server {
    listen 80;
    server_name {{.ServerName}};

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }

    add_header X-Frame-Options DENY always;
    add_header X-Content-Type-Options nosniff always;
    add_header X-XSS-Protection "1; mode=block" always;

    location ~ /\.(git|env) {
        deny all;
        return 404;
    }
}
`

var tmpl = template.Must(template.New("site").Parse(siteTemplate))

const (
	sitesAvailable = "/etc/nginx/sites-available"
	sitesEnabled   = "/etc/nginx/sites-enabled"
)

// Site describes one nginx server block.
type Site struct {
	Name       string // config file basename, the project name
	ServerName string // host the block answers for, the server address
	Port       int    // loopback port the application listens on
}

// Executor runs commands on the target host.
type Executor interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Result, error)
}

// Configurator writes, enables and removes server blocks.
type Configurator struct {
	exec Executor
	log  *slog.Logger
	sudo bool
}

func New(exec Executor, log *slog.Logger, sudo bool) *Configurator {
	return &Configurator{exec: exec, log: log, sudo: sudo}
}

// Apply renders the server block for site, installs it and reloads
// nginx. The config test gates the reload, so a bad block never
// reaches the running proxy.
func (c *Configurator) Apply(ctx context.Context, site Site) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, site); err != nil {
		return fmt.Errorf("render server block: %w", err)
	}

	confPath := sitesAvailable + "/" + site.Name + ".conf"
	write := remote.Exec("tee", confPath).Sudo(c.sudo).WithStdin(&buf)
	res, err := c.exec.Run(ctx, write)
	if err != nil {
		return fmt.Errorf("write server block: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("write server block: exit %d: %s", res.ExitStatus, res.Tail(3))
	}

	enable := remote.NewScript().
		Exec("ln", "-sf", confPath, sitesEnabled+"/"+site.Name+".conf").
		Exec("rm", "-f", sitesEnabled+"/default").
		Sudo(c.sudo)
	res, err = c.exec.Run(ctx, enable.Command())
	if err != nil {
		return fmt.Errorf("enable server block: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("enable server block: exit %d: %s", res.ExitStatus, res.Tail(3))
	}

	res, err = c.exec.Run(ctx, remote.Exec("nginx", "-t").Sudo(c.sudo))
	if err != nil {
		return fmt.Errorf("nginx config test: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("nginx rejected the generated configuration: %s", res.Tail(5))
	}

	res, err = c.exec.Run(ctx, remote.Exec("systemctl", "reload", "nginx").Sudo(c.sudo))
	if err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("reload nginx: exit %d: %s", res.ExitStatus, res.Tail(3))
	}

	c.log.Info("nginx proxying",
		"server_name", site.ServerName,
		"upstream", fmt.Sprintf("127.0.0.1:%d", site.Port))
	return nil
}

// Remove drops the server block installed for name. The reload after
// removal is best effort: with the block gone the proxy state no
// longer depends on it.
func (c *Configurator) Remove(ctx context.Context, name string) error {
	drop := remote.NewScript().
		Exec("rm", "-f", sitesAvailable+"/"+name+".conf").
		Exec("rm", "-f", sitesEnabled+"/"+name+".conf").
		Sudo(c.sudo)
	res, err := c.exec.Run(ctx, drop.Command())
	if err != nil {
		return fmt.Errorf("remove server block: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("remove server block: exit %d: %s", res.ExitStatus, res.Tail(3))
	}

	reload := remote.NewScript().
		Raw("nginx -t && systemctl reload nginx || true").
		Sudo(c.sudo)
	if _, err := c.exec.Run(ctx, reload.Command()); err != nil {
		c.log.Warn("nginx reload after removal failed", "error", err)
	}

	c.log.Info("removed nginx server block", "name", name)
	return nil
}
