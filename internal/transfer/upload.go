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

// smallFileThreshold is the spec's 20 MiB cutoff between the single
// multipart upload_all call and the three-phase chunked protocol.
const smallFileThreshold = 20 * 1024 * 1024

// defaultBlockSize is used only if the server's Prepare response omits
// one (defensive; the real protocol always returns it).
const defaultBlockSize = 4 * 1024 * 1024

// StartUploadFile begins uploading one local file under parentNode on
// tenantID, returning immediately with a pending TransferTask while the
// transfer runs in the background.
func (e *Engine) StartUploadFile(ctx context.Context, tenantID, localPath, parentNode string) (*model.TransferTask, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.IO, "stat local file", err)
	}
	if info.IsDir() {
		return nil, apierr.New(apierr.BadInput, "use StartUploadFolder for directories")
	}

	t := e.newTask(model.DirectionUpload, model.KindUploadFile, tenantID, filepath.Base(localPath), localPath, info.Size())
	t.ParentToken = parentNode

	control := e.registerControl(t.ID)
	e.setStatus(t.ID, model.StatusRunning, "")

	go func() {
		bg := context.Background()
		if err := e.runUploadFile(bg, t, control); err != nil {
			log.Debug().Err(err).Str("task_id", t.ID).Msg("upload run exited")
		}
	}()
	return t, nil
}

// ResumeTransferTask restarts a failed task from its persisted resume
// state: a chunked upload reattaches to its upload_id at next_seq; a
// download reattaches at its byte offset (see download.go).
func (e *Engine) ResumeTransferTask(id string) error {
	t, ok := e.Get(id)
	if !ok {
		return apierr.New(apierr.NotFound, "transfer task not found")
	}
	if t.Status != model.StatusFailed && t.Status != model.StatusPaused {
		return apierr.New(apierr.Conflict, "task is not resumable from its current state")
	}

	control := e.registerControl(t.ID)
	e.setStatus(t.ID, model.StatusRunning, "")

	switch t.Kind {
	case model.KindUploadFile:
		go func() {
			if err := e.runUploadFile(context.Background(), t, control); err != nil {
				log.Debug().Err(err).Str("task_id", t.ID).Msg("resumed upload exited")
			}
		}()
	case model.KindDownloadFile:
		go func() {
			if err := e.runDownloadFile(context.Background(), t, control); err != nil {
				log.Debug().Err(err).Str("task_id", t.ID).Msg("resumed download exited")
			}
		}()
	default:
		e.unregisterControl(t.ID)
		return apierr.New(apierr.BadInput, "directory tasks are not individually resumable; retrigger the directory transfer")
	}
	return nil
}

// runUploadFile drives either the small-file or chunked path, resuming
// from persisted state when t.Resume.UploadFile is already populated.
func (e *Engine) runUploadFile(ctx context.Context, t *model.TransferTask, control *Control) error {
	client, err := e.clients(ctx, t.TenantID)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "resolve tenant client", err))
	}

	if t.Resume != nil && t.Resume.UploadFile != nil {
		return e.runChunkedUpload(ctx, t, control, client, t.Resume.UploadFile)
	}

	if t.Size <= smallFileThreshold {
		return e.runSmallUpload(ctx, t, control, client)
	}
	return e.runChunkedUploadFresh(ctx, t, control, client)
}

func (e *Engine) runSmallUpload(ctx context.Context, t *model.TransferTask, control *Control, client clientLike) error {
	if err := control.Yield(); err != nil {
		return e.fail(t.ID, control, err)
	}

	f, err := os.Open(t.LocalPath)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "open local file", err))
	}
	defer f.Close()

	resp, err := client.UploadAll(ctx, filepath.Base(t.LocalPath), t.ParentToken, t.Size, f)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "upload_all", err))
	}

	t.ResourceToken = resp.FileToken
	e.idx.Register(resp.FileToken, t.TenantID)
	e.progress(t.ID, t.Size, t.Size, nil)
	e.succeed(t.ID, control)
	log.Info().Str("task_id", t.ID).Str("size", humanize.Bytes(uint64(t.Size))).Msg("small upload complete")
	return nil
}

func (e *Engine) runChunkedUploadFresh(ctx context.Context, t *model.TransferTask, control *Control, client clientLike) error {
	if err := control.Yield(); err != nil {
		return e.fail(t.ID, control, err)
	}

	prep, err := client.UploadPrepare(ctx, filepath.Base(t.LocalPath), t.ParentToken, t.Size)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "upload_prepare", err))
	}
	blockSize := prep.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}

	resume := &model.UploadFileResume{
		UploadID:   prep.UploadID,
		BlockSize:  blockSize,
		NextSeq:    0,
		ParentNode: t.ParentToken,
		FilePath:   t.LocalPath,
		FileName:   filepath.Base(t.LocalPath),
		Size:       t.Size,
	}
	return e.runChunkedUpload(ctx, t, control, client, resume)
}

// runChunkedUpload executes Part calls for seq = resume.NextSeq..n-1,
// strictly in order (seq N is acknowledged before seq N+1 is sent), then
// Finish. On resume it seeks the local file to block_size*next_seq.
func (e *Engine) runChunkedUpload(ctx context.Context, t *model.TransferTask, control *Control, client clientLike, resume *model.UploadFileResume) error {
	f, err := os.Open(resume.FilePath)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "open local file", err))
	}
	defer f.Close()

	blockNum := int((resume.Size + resume.BlockSize - 1) / resume.BlockSize)
	offset := int64(resume.NextSeq) * resume.BlockSize
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "seek to resume offset", err))
	}

	buf := make([]byte, resume.BlockSize)
	transferred := offset

	for seq := resume.NextSeq; seq < blockNum; seq++ {
		if err := control.Yield(); err != nil {
			return e.fail(t.ID, control, err)
		}

		remaining := resume.Size - int64(seq)*resume.BlockSize
		chunkLen := resume.BlockSize
		if remaining < chunkLen {
			chunkLen = remaining
		}
		n, err := io.ReadFull(f, buf[:chunkLen])
		if err != nil && err != io.ErrUnexpectedEOF {
			return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "read chunk", err))
		}
		chunk := buf[:n]
		sum := chunkChecksum(chunk)

		if err := client.UploadPart(ctx, resume.UploadID, seq, int64(n), sum, newByteReader(chunk)); err != nil {
			return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "upload_part", err))
		}

		transferred += int64(n)
		resume.NextSeq = seq + 1
		e.progress(t.ID, transferred, resume.Size, &model.TransferResume{UploadFile: resume})
	}

	if err := control.Yield(); err != nil {
		return e.fail(t.ID, control, err)
	}
	finish, err := client.UploadFinish(ctx, resume.UploadID, resume.NextSeq)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "upload_finish", err))
	}

	t.ResourceToken = finish.FileToken
	e.idx.Register(finish.FileToken, t.TenantID)
	e.succeed(t.ID, control)
	return nil
}
