package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// minKeepAliveInterval is the lower bound on the keep-alive period (§4.A:
// "lower bound one second").
const minKeepAliveInterval = 1 * time.Second

// SFTP stores files on a remote host over SFTP, rooted at a configured
// remote directory. The connection is established once at construction;
// the *sftp.Client is shared by every call and guarded by a mutex on
// mutating operations, matching the "single shared object guarded by an
// exclusive lock" resource model of §5.
type SFTP struct {
	root string

	mu     sync.Mutex
	client *sftp.Client
	conn   *ssh.Client

	stopKeepAlive chan struct{}
}

// SFTPConfig carries the dial parameters for NewSFTP.
type SFTPConfig struct {
	Addr          string // host:port
	User          string
	Password      string // used when PrivateKey is nil
	PrivateKey    []byte // PEM-encoded; takes priority over Password
	RemoteRoot    string
	KeepAlive     time.Duration
	HostKeyCheck  ssh.HostKeyCallback // nil defaults to InsecureIgnoreHostKey (single-tenant, operator-configured host)
}

// NewSFTP dials the remote host once and starts the keep-alive goroutine.
func NewSFTP(cfg SFTPConfig) (*SFTP, error) {
	auth, err := sshAuthMethod(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := cfg.HostKeyCheck
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // single-tenant, operator supplies the host
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	conn, err := ssh.Dial("tcp", cfg.Addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("sftp client: %w", err)
	}

	s := &SFTP{
		root:          cfg.RemoteRoot,
		client:        client,
		conn:          conn,
		stopKeepAlive: make(chan struct{}),
	}

	interval := cfg.KeepAlive
	if interval < minKeepAliveInterval {
		interval = minKeepAliveInterval
	}
	go s.keepAlive(interval)

	return s, nil
}

// keepAlive sends an SSH keepalive@openssh.com request on interval until
// Close is called. It holds no lock on s.client: SendRequest travels over
// the ssh.Conn directly, independent of the sftp subsystem.
func (s *SFTP) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _, _ = s.conn.SendRequest("keepalive@openssh.com", true, nil)
		case <-s.stopKeepAlive:
			return
		}
	}
}

// Close stops the keep-alive goroutine and tears down the connection.
func (s *SFTP) Close() error {
	close(s.stopKeepAlive)
	s.mu.Lock()
	defer s.mu.Unlock()
	cerr := s.client.Close()
	if err := s.conn.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}

func sshAuthMethod(cfg SFTPConfig) (ssh.AuthMethod, error) {
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(cfg.Password), nil
}

// abs joins a forward-slash logical path onto the remote root.
func (s *SFTP) abs(logicalPath string) string {
	return path.Join(s.root, path.Clean("/"+logicalPath))
}

func (s *SFTP) RootDirectory() string { return s.root }

func (s *SFTP) Exists(_ context.Context, p string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.client.Stat(s.abs(p))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *SFTP) Metadata(_ context.Context, p string) (FileMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := s.client.Stat(s.abs(p))
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		Path:            p,
		IsDir:           info.IsDir(),
		Size:            info.Size(),
		ModifiedUnixSec: info.ModTime().Unix(),
	}, nil
}

// ReadStream reads the remote file in readChunkSize increments on a
// dedicated goroutine, mirroring Local's producer/consumer shape.
func (s *SFTP) ReadStream(ctx context.Context, p string) (<-chan StreamChunk, error) {
	s.mu.Lock()
	f, err := s.client.Open(s.abs(p))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, readStreamBuffer)
	go func() {
		defer close(out)
		defer f.Close()
		buf := make([]byte, readChunkSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := f.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- StreamChunk{Data: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case out <- StreamChunk{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()
	return out, nil
}

func (s *SFTP) WriteBytes(_ context.Context, p string, data []byte) error {
	dest := s.abs(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.MkdirAll(path.Dir(dest)); err != nil {
		return fmt.Errorf("mkdir %q: %w", path.Dir(dest), err)
	}

	tmp := dest + ".tmp"
	f, err := s.client.Create(tmp)
	if err != nil {
		return fmt.Errorf("create tmp %q: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		s.client.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("write tmp %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		s.client.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("close tmp %q: %w", tmp, err)
	}
	if err := s.client.Rename(tmp, dest); err != nil {
		s.client.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename to %q: %w", dest, err)
	}
	return nil
}

// sftpWriteHandle adapts *sftp.File to RandomWriteHandle. SFTPv3 supports
// native random access, so chunks are placed directly rather than
// rewriting the whole file on every resume (§9's "resumable write handle"
// design note).
type sftpWriteHandle struct {
	f *sftp.File
}

func (h *sftpWriteHandle) Seek(offset int64) error {
	_, err := h.f.Seek(offset, io.SeekStart)
	return err
}

func (h *sftpWriteHandle) Write(p []byte) (int, error) { return h.f.Write(p) }

func (h *sftpWriteHandle) Close() error { return h.f.Close() }

func (s *SFTP) GetWritableHandle(_ context.Context, p string) (RandomWriteHandle, error) {
	dest := s.abs(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.MkdirAll(path.Dir(dest)); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", path.Dir(dest), err)
	}
	f, err := s.client.OpenFile(dest, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", dest, err)
	}
	return &sftpWriteHandle{f: f}, nil
}

func (s *SFTP) Delete(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.RemoveAll(s.abs(p)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *SFTP) Rename(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	absTo := s.abs(to)
	if err := s.client.MkdirAll(path.Dir(absTo)); err != nil {
		return err
	}
	return s.client.Rename(s.abs(from), absTo)
}

func (s *SFTP) CreateDirs(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.MkdirAll(s.abs(p))
}

func (s *SFTP) ListDir(_ context.Context, p string) ([]FileMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.client.ReadDir(s.abs(p))
	if err != nil {
		return nil, err
	}
	out := make([]FileMetadata, 0, len(entries))
	for _, e := range entries {
		childPath := p
		if childPath != "" {
			childPath += "/"
		}
		childPath += e.Name()
		out = append(out, FileMetadata{
			Path:            childPath,
			IsDir:           e.IsDir(),
			Size:            e.Size(),
			ModifiedUnixSec: e.ModTime().Unix(),
		})
	}
	return out, nil
}

func (s *SFTP) DeleteEmptyDir(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.RemoveDirectory(s.abs(p))
}
