package fileloaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"steamchain/internal/platform"
)

const PluginYouTubeImporter = "youtube-file-importer"

// Importer is a Platform that can also run importer plugins.
type Importer interface {
	Platform
	UsePlugin(ctx context.Context, req platform.PluginRequest) (*platform.PluginInstance, error)
	ImportFile(ctx context.Context, pluginInstance, url string) (*platform.Task, error)
	Wait(ctx context.Context, task *platform.Task, opts platform.WaitOptions) (*platform.Task, error)
}

// YouTubeLoader imports the audio of a YouTube video as a file. Import can
// take minutes, so the loader keeps waiting across wait timeouts until the
// task finishes or ctx is done.
type YouTubeLoader struct {
	Client Importer
	Wait   platform.WaitOptions
}

func NewYouTubeLoader(client Importer) *YouTubeLoader {
	return &YouTubeLoader{
		Client: client,
		Wait:   platform.WaitOptions{MaxTimeout: 60 * time.Second, RetryDelay: 2 * time.Second},
	}
}

func (l *YouTubeLoader) Load(ctx context.Context, videoURL string, metadata map[string]any) ([]platform.File, error) {
	inst, err := l.Client.UsePlugin(ctx, platform.PluginRequest{
		PluginHandle:  PluginYouTubeImporter,
		FetchIfExists: true,
	})
	if err != nil {
		return nil, err
	}
	task, err := l.Client.ImportFile(ctx, inst.Handle, videoURL)
	if err != nil {
		return nil, err
	}

	for !task.Done() {
		next, err := l.Client.Wait(ctx, task, l.Wait)
		if next != nil {
			task = next
		}
		if err == nil || errors.Is(err, platform.ErrTaskTimeout) {
			continue
		}
		var failed *platform.TaskFailedError
		if !errors.As(err, &failed) {
			return nil, err
		}
	}
	if task.State == platform.TaskFailed {
		return nil, fmt.Errorf("failed to import youtube video %s : %s", videoURL, task.StatusMessage)
	}

	var imported platform.File
	if err := task.DecodeOutput(&imported); err != nil {
		return nil, err
	}
	if err := AddURLTags(ctx, l.Client, imported.ID, videoURL, metadata); err != nil {
		return nil, err
	}
	refreshed, err := l.Client.GetFile(ctx, imported.ID)
	if err != nil {
		return nil, err
	}
	return []platform.File{*refreshed}, nil
}
