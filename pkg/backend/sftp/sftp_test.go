package sftp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittores/pkg/backend/memory"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
	restesting "github.com/marmos91/dittores/pkg/resource/testing"
	"github.com/marmos91/dittores/pkg/session"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "tester"
	testPassword = "secret"
)

// testServer is an in-process SSH server exposing the local filesystem
// over the sftp subsystem.
type testServer struct {
	addr      string
	hostKey   ssh.PublicKey
	clientKey []byte // PEM of the authorized client key

	// connections counts live SSH connections
	connections *atomic.Int32
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	authorized, err := ssh.NewPublicKey(clientPub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() == testUser && bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	connections := &atomic.Int32{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, connections)
		}
	}()

	return &testServer{
		addr:        ln.Addr().String(),
		hostKey:     hostSigner.PublicKey(),
		clientKey:   pem.EncodeToMemory(block),
		connections: connections,
	}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig, connections *atomic.Int32) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	connections.Add(1)
	defer connections.Add(-1)
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
			}
		}(requests)
		go func() {
			server, err := sftp.NewServer(channel)
			if err != nil {
				_ = channel.Close()
				return
			}
			_ = server.Serve()
			_ = server.Close()
		}()
	}
}

func (s *testServer) config() Config {
	return Config{
		User:            testUser,
		Password:        testPassword,
		HostKeyCallback: ssh.FixedHostKey(s.hostKey),
	}
}

func TestSFTPBackend(t *testing.T) {
	srv := startServer(t)
	suite := &restesting.BackendTestSuite{
		NewRoot: func(t *testing.T) *resource.Resource {
			return NewBackend(srv.config(), srv.addr, "", nil).Resource(t.TempDir(), resource.TypeDirectory)
		},
	}
	suite.Run(t)
}

func TestWritesLandOnServerFilesystem(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	dir := t.TempDir()

	r := NewBackend(srv.config(), srv.addr, "", nil).Resource(filepath.Join(dir, "hello.txt"), resource.TypeFile)
	require.NoError(t, r.WriteBytes(ctx, []byte("over ssh")))

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "over ssh", string(data))
}

func TestCredentialsThroughPipeline(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))

	// No configured secret: only the attached credential can log in.
	cfg := Config{HostKeyCallback: ssh.FixedHostKey(srv.hostKey)}
	p := pipeline.New([]pipeline.Resolver{NewResolver(cfg, 0)}, nil)
	uri := "sftp://" + testUser + "@" + srv.addr + filepath.ToSlash(filepath.Join(dir, "a.txt"))

	t.Run("Password", func(t *testing.T) {
		r, err := p.Resolve(ctx, uri, pipeline.WithCredential(resource.UserPassword{Password: testPassword}))
		require.NoError(t, err)
		content, err := r.ReadAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", string(content))
	})

	t.Run("PrivateKey", func(t *testing.T) {
		r, err := p.Resolve(ctx, uri, pipeline.WithCredential(resource.PrivateKey{PEM: srv.clientKey}))
		require.NoError(t, err)
		exists, err := r.Exists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		r, err := p.Resolve(ctx, uri, pipeline.WithCredential(resource.UserPassword{Password: "nope"}))
		require.NoError(t, err)
		_, err = r.ReadAll(ctx)
		assert.ErrorIs(t, err, resource.ErrPermission)
	})

	t.Run("NoCredential", func(t *testing.T) {
		r, err := p.Resolve(ctx, uri)
		require.NoError(t, err)
		_, err = r.Exists(ctx)
		var cfgErr *resource.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("AccessKeyIgnored", func(t *testing.T) {
		r, err := p.Resolve(ctx, uri, pipeline.WithCredential(resource.AccessKey{AccessKeyID: "x"}))
		require.NoError(t, err)
		assert.Nil(t, r.Credential())
	})
}

func TestEachInstanceOwnsItsSession(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))

	parent := NewBackend(srv.config(), srv.addr, "", nil).Resource(dir, resource.TypeDirectory)
	children, err := parent.List(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)

	parentBackend := parent.Backend().(*Backend)
	childBackend := children[0].Backend().(*Backend)
	assert.NotSame(t, parentBackend, childBackend)
	assert.Equal(t, session.StateActive, parentBackend.State())
	assert.Equal(t, session.StateNoSession, childBackend.State())

	require.NoError(t, parentBackend.Close())
	assert.Equal(t, session.StateClosed, parentBackend.State())

	_, err = children[0].ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, childBackend.State())
}

func TestHostKeyVerification(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherSigner, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)

	cfg := srv.config()
	cfg.HostKeyCallback = ssh.FixedHostKey(otherSigner.PublicKey())
	_, err = NewBackend(cfg, srv.addr, "", nil).Resource(t.TempDir(), resource.TypeDirectory).Exists(ctx)
	assert.ErrorIs(t, err, resource.ErrBackend)

	cfg.HostKeyCallback = nil
	_, err = NewBackend(cfg, srv.addr, "", nil).Resource(t.TempDir(), resource.TypeDirectory).Exists(ctx)
	var cfgErr *resource.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&sftp.StatusError{Code: statusNoSuchFile}, resource.ErrNotFound},
		{&sftp.StatusError{Code: statusPermissionDenied}, resource.ErrPermission},
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, resource.ErrNotFound},
		{fs.ErrPermission, resource.ErrPermission},
		{errors.New("connection reset"), resource.ErrBackend},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, translate("read", "sftp://host:22", tc.err), tc.want, tc.err.Error())
	}
}

func TestResolverRequiresHost(t *testing.T) {
	p := pipeline.New([]pipeline.Resolver{NewResolver(Config{}, 0)}, nil)
	_, err := p.Resolve(context.Background(), "sftp:/etc/hosts")
	var cfgErr *resource.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestWithPort(t *testing.T) {
	assert.Equal(t, "example.com:22", withPort("example.com"))
	assert.Equal(t, "example.com:2222", withPort("example.com:2222"))
}

func TestCopyReleasesSourceSessions(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)
	dir := t.TempDir()
	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), []byte("x"), 0644))
	}

	src := NewBackend(srv.config(), srv.addr, "", nil).Resource(dir, resource.TypeDirectory)
	t.Cleanup(func() { _ = src.Close() })
	dst := memory.NewBackend(nil).Resource("/copy", resource.TypeDirectory)

	_, err := dst.CopyFrom(ctx, src, 0)
	require.NoError(t, err)

	children, err := dst.List(ctx)
	require.NoError(t, err)
	assert.Len(t, children, 5)

	// only the session of the walk root survives the copy
	assert.Eventually(t, func() bool {
		return srv.connections.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)
}
