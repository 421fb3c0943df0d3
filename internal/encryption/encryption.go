package encryption

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// EncryptedExtension is appended to object names of encrypted archives.
const EncryptedExtension = ".gpg"

// EncryptedReader streams gpg's stdout. Close must be called to collect
// gpg's exit status.
type EncryptedReader struct {
	reader  io.Reader
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	copyErr chan error
}

func (r *EncryptedReader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

// Close drains whatever the consumer left unread so gpg can exit, then
// reports gpg's status.
func (r *EncryptedReader) Close() error {
	_, _ = io.Copy(io.Discard, r.reader)
	copyErr := <-r.copyErr
	if err := r.cmd.Wait(); err != nil {
		return errors.Wrapf(err, "GPG encryption failed (stderr: %s)", r.stderr.String())
	}
	if copyErr != nil {
		return errors.Wrap(copyErr, "GPG encryption input failed")
	}
	logger.Log.Debug("GPG encryption completed successfully")
	return nil
}

// GPGEncryptor encrypts archive streams to a public key file with the gpg
// binary. A zero-value or disabled encryptor passes data through unchanged.
type GPGEncryptor struct {
	publicKeyPath string
	enabled       bool
}

// NewGPGEncryptor returns a disabled encryptor for an empty path. Otherwise
// it checks that gpg is installed and the key file can be imported.
func NewGPGEncryptor(publicKeyPath string) (*GPGEncryptor, error) {
	if publicKeyPath == "" {
		return &GPGEncryptor{enabled: false}, nil
	}

	if _, err := os.Stat(publicKeyPath); err != nil {
		return nil, errors.Wrap(err, "public key file not found")
	}

	if _, err := exec.LookPath("gpg"); err != nil {
		return nil, errors.Wrap(err, "GPG not found in PATH")
	}

	cmd := exec.Command("gpg", "--batch", "--import", "--dry-run", publicKeyPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "invalid GPG public key (output: %s)", bytes.TrimSpace(out))
	}

	logger.Log.Info("GPG encryption enabled", zap.String("publicKeyPath", publicKeyPath))
	return &GPGEncryptor{
		publicKeyPath: publicKeyPath,
		enabled:       true,
	}, nil
}

// Encrypt returns a reader yielding the encrypted form of input.
func (e *GPGEncryptor) Encrypt(ctx context.Context, input io.Reader) (io.ReadCloser, error) {
	if !e.IsEnabled() {
		return io.NopCloser(input), nil
	}

	cmd := exec.CommandContext(ctx, "gpg",
		"--encrypt",
		"--recipient-file", e.publicKeyPath,
		"--batch",
		"--yes",
		"--trust-model", "always",
		"--output", "-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create stdout pipe")
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start GPG command")
	}

	copyErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(stdin, input)
		if errClose := stdin.Close(); err == nil {
			err = errClose
		}
		if err != nil {
			logger.Log.Error("Failed to copy data to GPG stdin", zap.Error(err))
		}
		copyErr <- err
	}()

	logger.Log.Debug("GPG encryption started")
	return &EncryptedReader{
		reader:  stdout,
		cmd:     cmd,
		stderr:  stderr,
		copyErr: copyErr,
	}, nil
}

func (e *GPGEncryptor) IsEnabled() bool {
	return e != nil && e.enabled
}

// GetEncryptedExtension returns the object-name suffix for this encryptor's output.
func (e *GPGEncryptor) GetEncryptedExtension() string {
	if e.IsEnabled() {
		return EncryptedExtension
	}
	return ""
}
