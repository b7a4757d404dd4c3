// internal/transfer/scp.go
//
// Single-file copies over the scp protocol. Cheaper than a full SFTP channel
// when all the caller wants is one file in or out.

package transfer

import (
	"context"
	"fmt"
	"os"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"
)

// ScpUpload copies one local file to remotePath over an authenticated client.
func ScpUpload(ctx context.Context, client *ssh.Client, localPath, remotePath string) error {
	scpClient, err := scp.NewClientBySSH(client)
	if err != nil {
		return fmt.Errorf("failed to create scp client: %w", err)
	}
	defer scpClient.Close()

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	permissions := fmt.Sprintf("%04o", info.Mode().Perm())

	if err := scpClient.CopyFromFile(ctx, *file, remotePath, permissions); err != nil {
		return fmt.Errorf("failed to copy %s to remote: %w", localPath, err)
	}
	return nil
}

// ScpDownload copies one remote file to localPath over an authenticated
// client.
func ScpDownload(ctx context.Context, client *ssh.Client, remotePath, localPath string) error {
	scpClient, err := scp.NewClientBySSH(client)
	if err != nil {
		return fmt.Errorf("failed to create scp client: %w", err)
	}
	defer scpClient.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	if err := scpClient.CopyFromRemote(ctx, file, remotePath); err != nil {
		return fmt.Errorf("failed to copy %s from remote: %w", remotePath, err)
	}
	return nil
}
