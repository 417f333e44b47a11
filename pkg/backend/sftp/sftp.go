// Package sftp implements the sftp: backend.
//
// URI layout: sftp://user@host:port/absolute/path. Every resource instance
// owns a session.Holder whose session is an SSH connection; each operation
// runs on its own SFTP subsystem channel opened from that connection.
//
// Authentication uses, in order: the credential attached to the resource
// (password or private key), then the key file and password from the
// configuration.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/marmos91/dittores/pkg/session"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Scheme is the URI scheme served by this package.
const Scheme = "sftp"

const (
	defaultPort    = "22"
	defaultTimeout = 10 * time.Second
)

// SFTP status codes (draft-ietf-secsh-filexfer-02, section 7).
const (
	statusNoSuchFile       = 2
	statusPermissionDenied = 3
)

// Config contains connection settings shared by every sftp: resource.
type Config struct {
	// User is the login used when neither the URI nor the credential names one
	User string `mapstructure:"user"`

	// Password authenticates when no key applies
	Password string `mapstructure:"password"`

	// KeyFile is a PEM private key used when the resource carries no
	// credential
	KeyFile string `mapstructure:"key_file"`

	// KnownHostsFile verifies server host keys (OpenSSH format)
	KnownHostsFile string `mapstructure:"known_hosts_file"`

	// InsecureIgnoreHostKey disables host key verification
	InsecureIgnoreHostKey bool `mapstructure:"insecure_ignore_host_key"`

	// Timeout bounds the TCP connect and the SSH handshake (default: 10s)
	Timeout time.Duration `mapstructure:"timeout"`

	// HostKeyCallback overrides KnownHostsFile and InsecureIgnoreHostKey
	HostKeyCallback ssh.HostKeyCallback `mapstructure:"-"`
}

// Backend serves sftp: resources of one host for one resource instance.
type Backend struct {
	config Config
	host   string
	user   string
	cred   resource.Credential
	holder *session.Holder[*ssh.Client, *sftp.Client]
}

// NewBackend creates a backend for host ("host" or "host:port"). user and
// cred may be empty.
func NewBackend(config Config, host, user string, cred resource.Credential) *Backend {
	b := &Backend{config: config, host: host, user: user, cred: cred}
	b.holder = session.NewHolder[*ssh.Client, *sftp.Client](&provider{
		config: config,
		addr:   withPort(host),
		user:   user,
		cred:   cred,
	})
	// Resources are never closed explicitly; drop the connection once the
	// instance is unreachable.
	runtime.AddCleanup(b, func(h *session.Holder[*ssh.Client, *sftp.Client]) {
		_ = h.Close()
	}, b.holder)
	return b
}

// Resource returns the resource at absolute path p.
func (b *Backend) Resource(p string, typ resource.Type) *resource.Resource {
	u := &url.URL{Scheme: Scheme, Host: b.host, Path: path.Clean("/" + p)}
	if b.user != "" {
		u.User = url.User(b.user)
	}
	return resource.New(b, u, typ)
}

func (b *Backend) Scheme() string { return Scheme }

// AcceptsCredential accepts passwords and private keys.
func (b *Backend) AcceptsCredential(c resource.Credential) bool {
	switch c.(type) {
	case resource.UserPassword, resource.PrivateKey:
		return true
	default:
		return false
	}
}

// Derive gives every related resource its own connection, authenticated
// with the credential of the new resource.
func (b *Backend) Derive(from *resource.Resource, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	return resource.New(NewBackend(b.config, b.host, b.user, from.Credential()), u, typ), nil
}

// Close drops the connection of this instance.
func (b *Backend) Close() error {
	return b.holder.Close()
}

// State reports the session state of this instance.
func (b *Backend) State() session.State {
	return b.holder.State()
}

func withPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, defaultPort)
}

// ============================================================================
// Session Provider
// ============================================================================

type provider struct {
	config Config
	addr   string
	user   string
	cred   resource.Credential
}

func (p *provider) Open(ctx context.Context) (*ssh.Client, error) {
	clientConfig, err := p.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: clientConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.addr, err)
	}

	// Bound the handshake with the same timeout as the dial.
	_ = conn.SetDeadline(time.Now().Add(clientConfig.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, p.addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, resource.NewIOError("connect", Scheme+"://"+p.addr, resource.ReasonPermission, err)
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", p.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	logger.Debug("sftp: connected to %s as %s", p.addr, clientConfig.User)
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Validate sends an OpenSSH keepalive; a dead transport fails the request.
func (p *provider) Validate(_ context.Context, c *ssh.Client) error {
	_, _, err := c.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

func (p *provider) CloseSession(c *ssh.Client) error {
	return c.Close()
}

func (p *provider) OpenChannel(_ context.Context, c *ssh.Client) (*sftp.Client, error) {
	return sftp.NewClient(c)
}

func (p *provider) CloseChannel(c *sftp.Client) error {
	return c.Close()
}

func (p *provider) Translate(op string, err error) error {
	return translate(op, Scheme+"://"+p.addr, err)
}

func (p *provider) clientConfig() (*ssh.ClientConfig, error) {
	user, auth, err := p.auth()
	if err != nil {
		return nil, err
	}
	if user == "" {
		return nil, resource.Configf("sftp: no user for %s", p.addr)
	}

	hostKey, err := p.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	timeout := p.config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

func (p *provider) auth() (string, []ssh.AuthMethod, error) {
	user := p.user
	if user == "" {
		user = p.config.User
	}

	switch c := p.cred.(type) {
	case resource.UserPassword:
		if c.User != "" {
			user = c.User
		}
		return user, []ssh.AuthMethod{ssh.Password(c.Password)}, nil
	case resource.PrivateKey:
		if c.User != "" {
			user = c.User
		}
		signer, err := parseKey(c.PEM, c.Passphrase)
		if err != nil {
			return "", nil, &resource.ConfigError{Msg: "sftp: invalid private key credential", Err: err}
		}
		return user, []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	var auth []ssh.AuthMethod
	if p.config.KeyFile != "" {
		pemBytes, err := os.ReadFile(p.config.KeyFile)
		if err != nil {
			return "", nil, &resource.ConfigError{Msg: "sftp: cannot read key file", Err: err}
		}
		signer, err := parseKey(pemBytes, "")
		if err != nil {
			return "", nil, &resource.ConfigError{Msg: "sftp: invalid key file " + p.config.KeyFile, Err: err}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if p.config.Password != "" {
		auth = append(auth, ssh.Password(p.config.Password))
	}
	if len(auth) == 0 {
		return "", nil, resource.Configf("sftp: no credential for %s", p.addr)
	}
	return user, auth, nil
}

func parseKey(pemBytes []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pemBytes)
}

func (p *provider) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case p.config.HostKeyCallback != nil:
		return p.config.HostKeyCallback, nil
	case p.config.KnownHostsFile != "":
		cb, err := knownhosts.New(p.config.KnownHostsFile)
		if err != nil {
			return nil, &resource.ConfigError{Msg: "sftp: cannot load known hosts", Err: err}
		}
		return cb, nil
	case p.config.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly requested by configuration
	default:
		return nil, resource.Configf("sftp: no host key verification configured (set known_hosts_file or insecure_ignore_host_key)")
	}
}

// translate maps SFTP status codes and fs errors onto the resource error
// taxonomy.
func translate(op, uri string, err error) error {
	var ioErr *resource.IOError
	var cfgErr *resource.ConfigError
	if errors.As(err, &ioErr) || errors.As(err, &cfgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case statusNoSuchFile:
			return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
		case statusPermissionDenied:
			return resource.NewIOError(op, uri, resource.ReasonPermission, err)
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return resource.NewIOError(op, uri, resource.ReasonNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return resource.NewIOError(op, uri, resource.ReasonPermission, err)
	default:
		return resource.NewIOError(op, uri, resource.ReasonFailure, err)
	}
}
