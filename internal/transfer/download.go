package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// partSuffix marks a download's temp file until it is renamed into
// place on success, per spec.md §5's file-atomicity rule.
const partSuffix = ".feisync.part"

// progressChunk bounds how much is read between Yield/progress calls
// during a download stream.
const progressChunk = 256 * 1024

// StartDownloadFile begins downloading token into localDir/fileName.
func (e *Engine) StartDownloadFile(ctx context.Context, tenantID, token, fileName, localDir string, size int64) (*model.TransferTask, error) {
	targetPath := filepath.Join(localDir, fileName)
	t := e.newTask(model.DirectionDownload, model.KindDownloadFile, tenantID, fileName, targetPath, size)
	t.ResourceToken = token

	control := e.registerControl(t.ID)
	e.setStatus(t.ID, model.StatusRunning, "")

	go func() {
		bg := context.Background()
		if err := e.runDownloadFile(bg, t, control); err != nil {
			log.Debug().Err(err).Str("task_id", t.ID).Msg("download run exited")
		}
	}()
	return t, nil
}

// runDownloadFile streams the file to a `.feisync.part` temp file,
// resuming via Range when resume state already exists, then renames
// into place atomically on success.
func (e *Engine) runDownloadFile(ctx context.Context, t *model.TransferTask, control *Control) error {
	client, err := e.clients(ctx, t.TenantID)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "resolve tenant client", err))
	}

	var resume *model.DownloadFileResume
	if t.Resume != nil && t.Resume.DownloadFile != nil {
		resume = t.Resume.DownloadFile
	} else {
		if err := os.MkdirAll(filepath.Dir(t.LocalPath), 0o755); err != nil {
			return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "create target directory", err))
		}
		resume = &model.DownloadFileResume{
			TempPath:   t.LocalPath + partSuffix,
			TargetPath: t.LocalPath,
			Downloaded: 0,
			Token:      t.ResourceToken,
			FileName:   filepath.Base(t.LocalPath),
		}
	}

	if err := control.Yield(); err != nil {
		return e.fail(t.ID, control, err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resume.Downloaded > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(resume.TempPath, flags, 0o644)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "open temp file", err))
	}
	defer out.Close()

	body, contentLength, err := client.DownloadFile(ctx, resume.Token, resume.Downloaded)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "download", err))
	}
	defer body.Close()

	total := t.Size
	if total == 0 && contentLength > 0 {
		total = resume.Downloaded + contentLength
	}

	downloaded := resume.Downloaded
	buf := make([]byte, progressChunk)
	for {
		if err := control.Yield(); err != nil {
			return e.fail(t.ID, control, err)
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "write temp file", werr))
			}
			downloaded += int64(n)
			resume.Downloaded = downloaded
			e.progress(t.ID, downloaded, total, &model.TransferResume{DownloadFile: resume})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "read response body", rerr))
		}
	}

	if err := out.Close(); err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "close temp file", err))
	}
	if err := os.Rename(resume.TempPath, resume.TargetPath); err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "rename into place", err))
	}

	e.succeed(t.ID, control)
	log.Info().Str("task_id", t.ID).Str("size", humanize.Bytes(uint64(downloaded))).Msg("download complete")
	return nil
}
