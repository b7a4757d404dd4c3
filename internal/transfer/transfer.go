// internal/transfer/transfer.go
//
// File transfer rides the already-authenticated transport; it never dials or
// authenticates on its own. SFTP covers browsing and bulk operations, scp.go
// covers simple single-file copies.

package transfer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"sshBridge/internal/utils"
)

// Progress reports transfer state for one file.
type Progress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	StartTime        time.Time
}

// FileTransfer wraps an SFTP channel over an authenticated client.
type FileTransfer struct {
	client     *ssh.Client
	sftpClient *sftp.Client
}

// NewFileTransfer opens an SFTP channel over client. The client stays owned
// by the transport; Close releases only the SFTP channel.
func NewFileTransfer(client *ssh.Client) (*FileTransfer, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return &FileTransfer{
		client:     client,
		sftpClient: sftpClient,
	}, nil
}

// Close releases the SFTP channel.
func (ft *FileTransfer) Close() error {
	if ft.sftpClient == nil {
		return nil
	}
	err := ft.sftpClient.Close()
	ft.sftpClient = nil
	if err != nil {
		return fmt.Errorf("error closing SFTP client: %w", err)
	}
	return nil
}

func (ft *FileTransfer) connected() bool { return ft.sftpClient != nil }

// ListLocalFiles lists a local directory.
func (ft *FileTransfer) ListLocalFiles(path string) ([]os.FileInfo, error) {
	dir, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	return dir.Readdir(-1)
}

// ListRemoteFiles lists a remote directory.
func (ft *FileTransfer) ListRemoteFiles(path string) ([]os.FileInfo, error) {
	if !ft.connected() {
		return nil, fmt.Errorf("not connected")
	}
	return ft.sftpClient.ReadDir(path)
}

// GetRemoteFileInfo stats a remote path.
func (ft *FileTransfer) GetRemoteFileInfo(path string) (os.FileInfo, error) {
	if !ft.connected() {
		return nil, fmt.Errorf("not connected")
	}
	return ft.sftpClient.Stat(path)
}

// CreateRemoteDirectory makes a remote directory, parents included.
func (ft *FileTransfer) CreateRemoteDirectory(path string) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}
	return ft.sftpClient.MkdirAll(path)
}

// RemoveRemoteFile removes a remote file, or an empty remote directory.
func (ft *FileTransfer) RemoveRemoteFile(path string) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}
	if err := ft.sftpClient.Remove(path); err == nil {
		return nil
	}
	return ft.sftpClient.RemoveDirectory(path)
}

// RenameRemoteFile renames a remote path.
func (ft *FileTransfer) RenameRemoteFile(oldPath, newPath string) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}
	return ft.sftpClient.Rename(oldPath, newPath)
}

// UploadFile copies a local file to the remote side, reporting progress on
// progressChan when non-nil. Progress sends never block.
func (ft *FileTransfer) UploadFile(localPath, remotePath string, progressChan chan<- Progress) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}

	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := ft.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dstFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	progress := Progress{
		FileName:   filepath.Base(localPath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}
	if err := copyWithProgress(dstFile, srcFile, &progress, progressChan); err != nil {
		return err
	}

	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync remote file: %w", err)
	}
	report(progressChan, progress)
	return nil
}

// DownloadFile copies a remote file to the local side.
func (ft *FileTransfer) DownloadFile(remotePath, localPath string, progressChan chan<- Progress) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}

	srcFile, err := ft.sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer dstFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	progress := Progress{
		FileName:   filepath.Base(remotePath),
		TotalBytes: fileInfo.Size(),
		StartTime:  time.Now(),
	}
	if err := copyWithProgress(dstFile, srcFile, &progress, progressChan); err != nil {
		return err
	}

	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync local file: %w", err)
	}
	report(progressChan, progress)
	return nil
}

// UploadDirectory copies a local tree to the remote side.
func (ft *FileTransfer) UploadDirectory(localPath, remotePath string, progressChan chan<- Progress) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}

	if err := ft.CreateRemoteDirectory(remotePath); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		remotePathFull := utils.ToRemotePath(filepath.Join(remotePath, relPath))
		if info.IsDir() {
			return ft.CreateRemoteDirectory(remotePathFull)
		}
		return ft.UploadFile(path, remotePathFull, progressChan)
	})
}

// DownloadDirectory copies a remote tree to the local side.
func (ft *FileTransfer) DownloadDirectory(remotePath, localPath string, progressChan chan<- Progress) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}

	if err := os.MkdirAll(localPath, 0755); err != nil {
		return fmt.Errorf("failed to create local directory: %w", err)
	}

	entries, err := ft.ListRemoteFiles(remotePath)
	if err != nil {
		return fmt.Errorf("failed to list remote directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == "." || entry.Name() == ".." {
			continue
		}
		remoteSrcPath := utils.ToRemotePath(filepath.Join(remotePath, entry.Name()))
		localDstPath := filepath.Join(localPath, entry.Name())

		if entry.IsDir() {
			if err := ft.DownloadDirectory(remoteSrcPath, localDstPath, progressChan); err != nil {
				return err
			}
		} else {
			if err := ft.DownloadFile(remoteSrcPath, localDstPath, progressChan); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveRemoteDirectoryRecursive removes a remote tree.
func (ft *FileTransfer) RemoveRemoteDirectoryRecursive(path string) error {
	if !ft.connected() {
		return fmt.Errorf("not connected")
	}

	entries, err := ft.ListRemoteFiles(path)
	if err != nil {
		return fmt.Errorf("failed to list remote directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == "." || entry.Name() == ".." {
			continue
		}
		fullPath := utils.ToRemotePath(filepath.Join(path, entry.Name()))
		if entry.IsDir() {
			if err := ft.RemoveRemoteDirectoryRecursive(fullPath); err != nil {
				return err
			}
		} else {
			if err := ft.RemoveRemoteFile(fullPath); err != nil {
				return err
			}
		}
	}
	return ft.sftpClient.RemoveDirectory(path)
}

// GetRemoteHomeDir resolves $HOME on the remote side.
func (ft *FileTransfer) GetRemoteHomeDir() (string, error) {
	if !ft.connected() {
		return "", fmt.Errorf("not connected")
	}

	session, err := ft.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	output, err := session.Output("echo $HOME")
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func copyWithProgress(dst io.Writer, src io.Reader, progress *Progress, progressChan chan<- Progress) error {
	buf := make([]byte, 128*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("error writing file: %w", writeErr)
			}
			if written != n {
				return fmt.Errorf("incomplete write: wrote %d bytes instead of %d", written, n)
			}
			progress.TransferredBytes += int64(n)
			report(progressChan, *progress)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading file: %w", err)
		}
	}
}

func report(progressChan chan<- Progress, progress Progress) {
	if progressChan == nil {
		return
	}
	select {
	case progressChan <- progress:
	default:
	}
}
