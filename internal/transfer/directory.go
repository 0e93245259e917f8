package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disconnec/FeiSync/internal/apierr"
	"github.com/disconnec/FeiSync/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// folderFanout bounds how many files within one directory transfer run
// concurrently, per the "prefer a worker pool" note in spec.md §9.
const folderFanout = 4

// StartUploadFolder BFS-walks localDir, creating each remote directory
// under its parent before uploading the files it contains. Files are
// uploaded inline and are not tracked as TransferTasks of their own;
// the folder transfer is tracked as one umbrella task whose
// Size/Transferred are the running sum of the files completed so far.
func (e *Engine) StartUploadFolder(ctx context.Context, tenantID, localDir, parentNode string) (*model.TransferTask, error) {
	info, err := os.Stat(localDir)
	if err != nil || !info.IsDir() {
		return nil, apierr.New(apierr.BadInput, "local path is not a directory")
	}

	t := e.newTask(model.DirectionUpload, model.KindUploadFolder, tenantID, filepath.Base(localDir), localDir, 0)
	t.ParentToken = parentNode
	control := e.registerControl(t.ID)
	e.setStatus(t.ID, model.StatusRunning, "")

	go func() {
		if err := e.runUploadFolder(context.Background(), t, control); err != nil {
			log.Debug().Err(err).Str("task_id", t.ID).Msg("folder upload exited")
		}
	}()
	return t, nil
}

type uploadDirJob struct {
	localDir    string
	parentToken string
}

func (e *Engine) runUploadFolder(ctx context.Context, t *model.TransferTask, control *Control) error {
	client, err := e.clients(ctx, t.TenantID)
	if err != nil {
		return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "resolve tenant client", err))
	}

	queue := []uploadDirJob{{localDir: t.LocalPath, parentToken: t.ParentToken}}
	var transferred int64

	for len(queue) > 0 {
		job := queue[0]
		queue = queue[1:]

		if err := control.Yield(); err != nil {
			return e.fail(t.ID, control, err)
		}

		entries, err := os.ReadDir(job.localDir)
		if err != nil {
			return e.fail(t.ID, control, apierr.Wrap(apierr.IO, "read directory", err))
		}

		var fileJobs []string
		for _, entry := range entries {
			full := filepath.Join(job.localDir, entry.Name())
			if entry.IsDir() {
				folderToken, err := client.CreateFolder(ctx, entry.Name(), job.parentToken)
				if err != nil {
					return e.fail(t.ID, control, apierr.Wrap(apierr.Upstream, "create_folder", err))
				}
				e.idx.Register(folderToken, t.TenantID)
				queue = append(queue, uploadDirJob{localDir: full, parentToken: folderToken})
				continue
			}
			fileJobs = append(fileJobs, full)
		}

		if len(fileJobs) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(folderFanout)
		var mu sync.Mutex
		for _, path := range fileJobs {
			path := path
			g.Go(func() error {
				if err := control.Yield(); err != nil {
					return err
				}
				n, uerr := e.uploadOneFile(gctx, t.TenantID, path, job.parentToken, client)
				if uerr != nil {
					return uerr
				}
				mu.Lock()
				transferred += n
				total := transferred
				mu.Unlock()
				e.progress(t.ID, total, total, nil)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return e.fail(t.ID, control, err)
		}
	}

	e.succeed(t.ID, control)
	return nil
}

// uploadOneFile runs the single-file upload pipeline inline (not as a
// separately tracked engine task) and registers the resulting token,
// returning the file's size for the umbrella task's running total.
func (e *Engine) uploadOneFile(ctx context.Context, tenantID, path, parentToken string, client clientLike) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, apierr.Wrap(apierr.IO, "stat file", err)
	}

	sub := &model.TransferTask{
		ID:          uuid.New().String(),
		Direction:   model.DirectionUpload,
		Kind:        model.KindUploadFile,
		DisplayName: filepath.Base(path),
		TenantID:    tenantID,
		ParentToken: parentToken,
		LocalPath:   path,
		Size:        info.Size(),
		Status:      model.StatusRunning,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, apierr.Wrap(apierr.IO, "open file", err)
	}
	defer f.Close()

	if sub.Size <= smallFileThreshold {
		resp, err := client.UploadAll(ctx, sub.DisplayName, parentToken, sub.Size, f)
		if err != nil {
			return 0, apierr.Wrap(apierr.Upstream, "upload_all", err)
		}
		e.idx.Register(resp.FileToken, tenantID)
		return sub.Size, nil
	}

	prep, err := client.UploadPrepare(ctx, sub.DisplayName, parentToken, sub.Size)
	if err != nil {
		return 0, apierr.Wrap(apierr.Upstream, "upload_prepare", err)
	}
	blockSize := prep.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	blockNum := int((sub.Size + blockSize - 1) / blockSize)
	buf := make([]byte, blockSize)
	for seq := 0; seq < blockNum; seq++ {
		remaining := sub.Size - int64(seq)*blockSize
		chunkLen := blockSize
		if remaining < chunkLen {
			chunkLen = remaining
		}
		n, err := f.Read(buf[:chunkLen])
		if err != nil && n == 0 {
			return 0, apierr.Wrap(apierr.IO, "read chunk", err)
		}
		sum := chunkChecksum(buf[:n])
		if err := client.UploadPart(ctx, prep.UploadID, seq, int64(n), sum, newByteReader(buf[:n])); err != nil {
			return 0, apierr.Wrap(apierr.Upstream, "upload_part", err)
		}
	}
	finish, err := client.UploadFinish(ctx, prep.UploadID, blockNum)
	if err != nil {
		return 0, apierr.Wrap(apierr.Upstream, "upload_finish", err)
	}
	e.idx.Register(finish.FileToken, tenantID)
	return sub.Size, nil
}
