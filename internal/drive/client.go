// Package drive stores attachment copies in the mailbox owner's Google Drive.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/vipul43/invy-worker/internal/breaker"
	"github.com/vipul43/invy-worker/internal/service"
)

const folderMimeType = "application/vnd.google-apps.folder"

type Client struct {
	cb   *breaker.Group
	opts []option.ClientOption

	// one mutex per folder path; find-then-create is not atomic on Drive
	folderLocks sync.Map
}

func NewClient() *Client {
	return &Client{
		cb: breaker.NewGroup("drive-api"),
	}
}

func (c *Client) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	opts := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}, c.opts...)
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return driveService, nil
}

// EnsureFolder walks folderPath from the Drive root, creating missing folders,
// and returns the id of the last one
func (c *Client) EnsureFolder(ctx context.Context, accessToken string, folderPath []string) (string, error) {
	if len(folderPath) == 0 {
		return "", fmt.Errorf("empty folder path")
	}

	lock, _ := c.folderLocks.LoadOrStore(strings.Join(folderPath, "/"), &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	driveService, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	parentID := "root"
	for _, name := range folderPath {
		parentID, err = c.findOrCreateFolder(ctx, driveService, name, parentID)
		if err != nil {
			return "", fmt.Errorf("failed to ensure folder %q: %w", name, err)
		}
	}

	log.Debugf("Folder structure ready: %s", strings.Join(folderPath, "/"))
	return parentID, nil
}

func (c *Client) findOrCreateFolder(ctx context.Context, driveService *drive.Service, name, parentID string) (string, error) {
	var list *drive.FileList
	err := c.cb.Execute(ctx, "ListFolders", func() error {
		var apiErr error
		list, apiErr = driveService.Files.List().
			Q(folderQuery(name, parentID)).
			Fields("files(id, name)").
			PageSize(1).
			Context(ctx).
			Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	var created *drive.File
	err = c.cb.Execute(ctx, "CreateFolder", func() error {
		var apiErr error
		created, apiErr = driveService.Files.Create(&drive.File{
			Name:     name,
			MimeType: folderMimeType,
			Parents:  []string{parentID},
		}).Fields("id").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}

	log.Infof("Created Drive folder: %s", name)
	return created.Id, nil
}

// Upload stores data in the folder and returns its id and a viewer link
func (c *Client) Upload(ctx context.Context, accessToken string, folderID string, name string, mimeType string, data []byte) (*service.StoredFile, error) {
	driveService, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var file *drive.File
	err = c.cb.Execute(ctx, "Upload", func() error {
		var apiErr error
		file, apiErr = driveService.Files.Create(&drive.File{
			Name:     name,
			MimeType: mimeType,
			Parents:  []string{folderID},
		}).Media(bytes.NewReader(data)).Fields("id, webViewLink").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &service.StoredFile{ID: file.Id, Link: file.WebViewLink}, nil
}

func (c *Client) Delete(ctx context.Context, accessToken string, fileID string) error {
	driveService, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}

	err = c.cb.Execute(ctx, "Delete", func() error {
		return driveService.Files.Delete(fileID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func folderQuery(name, parentID string) string {
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderMimeType, escapeQuery(parentID))
}

// escapeQuery escapes a value for a single-quoted Drive query literal
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
