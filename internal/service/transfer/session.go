package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
	"github.com/vertextoedge/sonix-downloader/internal/domain/service"
	"github.com/vertextoedge/sonix-downloader/internal/domain/vo"
)

// errNotStreaming rejects a store update for an entry that left the downloading state
var errNotStreaming = errors.New("download is not streaming")

// session is one attempt to copy a remote stream to disk
type session struct {
	id        string
	url       string
	attemptID string

	cancel    context.CancelFunc
	stopFetch context.CancelFunc
	done      chan struct{}

	startedAt   time.Time
	total       int64
	resumedFrom int64

	// Per-chunk progress, read by applyProgress under the store lock
	written int64
	now     time.Time
	apply   func(*domain.DownloadState) error
}

func newSession(id, url, attemptID string) *session {
	s := &session{
		id:        id,
		url:       url,
		attemptID: attemptID,
		total:     domain.UnknownSize,
		done:      make(chan struct{}),
	}
	s.apply = s.applyProgress
	return s
}

// applyProgress records the current chunk position.
// It is bound once per session so a chunk update allocates nothing.
func (s *session) applyProgress(st *domain.DownloadState) error {
	if st.Status != domain.StatusDownloading {
		return errNotStreaming
	}
	st.BytesTransferred = s.written
	st.UpdatedAt = s.now
	service.ApplyRate(st, service.EstimateRate(s.written, s.total, s.now.Sub(s.startedAt)))
	return nil
}

// run copies body to w until EOF, an error, or the session context ends.
func (m *Manager) run(ctx context.Context, sess *session, w *writer, body io.ReadCloser) {
	defer m.release(sess)

	// Closing the body unblocks a read waiting on the network
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()
	defer body.Close()

	buf := make([]byte, m.config.BufferSize)
	sess.written = w.Offset()

	for {
		if ctx.Err() != nil {
			m.interrupted(sess, w)
			return
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				m.interrupted(sess, w)
				return
			}

			chunk := buf[:n]
			if sess.total >= 0 && sess.written+int64(n) > sess.total {
				chunk = buf[:sess.total-sess.written]
			}

			if len(chunk) > 0 {
				if _, err := w.Write(chunk); err != nil {
					m.fail(sess, w, "write", err)
					return
				}
				sess.written += int64(len(chunk))
				sess.now = time.Now()

				state, err := m.store.Update(sess.id, sess.apply)
				if err != nil {
					m.interrupted(sess, w)
					return
				}
				m.logProgress(sess, &state)
			}

			if sess.total >= 0 && sess.written >= sess.total {
				m.complete(sess, w)
				return
			}
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			if sess.total >= 0 && sess.written < sess.total {
				m.fail(sess, w, "read", io.ErrUnexpectedEOF)
				return
			}
			m.complete(sess, w)
			return
		case ctx.Err() != nil:
			m.interrupted(sess, w)
			return
		default:
			m.fail(sess, w, "read", rerr)
			return
		}
	}
}

// interrupted closes the file after a pause, cancel or shutdown.
// Cancel owns the cleanup of a canceled entry.
func (m *Manager) interrupted(sess *session, w *writer) {
	if w != nil {
		if err := w.Close(); err != nil {
			m.logger.Warn("failed to close partial file", zap.String("file", sess.id), zap.Error(err))
		}
	}

	state, err := m.store.Get(sess.id)
	if err != nil || state.Status == domain.StatusCanceled {
		return
	}

	if state.Status != domain.StatusPaused {
		// The base context ended without a pause request
		state, err = m.store.Update(sess.id, func(s *domain.DownloadState) error {
			return s.Pause()
		})
		if err != nil {
			return
		}
	}

	m.dispatcher.Dispatch(event.TransferPaused{
		TransferEvent: m.newEvent(sess, sess.written),
	})

	m.logger.Info("download stopped",
		zap.String("file", sess.id),
		zap.Int64("bytes", sess.written),
		zap.String("status", string(state.Status)))
}

// fail records a network or disk error. Partial data stays on disk.
func (m *Manager) fail(sess *session, w *writer, op string, err error) {
	if w != nil {
		w.Close()
	}

	terr := domain.NewTransferFailedError(sess.id, op, err)
	_, uerr := m.store.Update(sess.id, func(s *domain.DownloadState) error {
		if s.Status != domain.StatusDownloading {
			return errNotStreaming
		}
		s.BytesTransferred = sess.written
		s.MarkFailed(terr)
		return nil
	})
	if uerr != nil {
		// A pause or cancel won the race; the error is a consequence of it
		m.interrupted(sess, w)
		return
	}

	m.dispatcher.Dispatch(event.TransferFailed{
		TransferEvent: m.newEvent(sess, sess.written),
		Error:         terr.Error(),
	})

	m.logger.Warn("download failed",
		zap.String("file", sess.id),
		zap.String("op", op),
		zap.Int64("bytes", sess.written),
		zap.Error(err))
}

// complete promotes the artifact and marks the entry completed
func (m *Manager) complete(sess *session, w *writer) {
	result, err := w.Commit()
	if err != nil {
		m.fail(sess, nil, "commit", err)
		return
	}
	result.Resumed = sess.resumedFrom > 0
	result.ResumedFrom = sess.resumedFrom

	_, err = m.store.Update(sess.id, func(s *domain.DownloadState) error {
		if s.Status == domain.StatusCanceled {
			return errNotStreaming
		}
		s.MarkCompleted(result.BytesWritten)
		return nil
	})
	if err != nil {
		return
	}

	m.dispatcher.Dispatch(event.TransferCompleted{
		TransferEvent: m.newEvent(sess, result.BytesWritten),
		FinalPath:     result.FinalPath,
		Duration:      time.Since(sess.startedAt),
		Resumed:       result.Resumed,
	})

	if result.Resumed {
		m.logger.Info("download completed (resumed)",
			zap.String("file", sess.id),
			zap.String("path", result.FinalPath),
			zap.Int64("total_size", result.BytesWritten),
			zap.Int64("resumed_from", result.ResumedFrom))
	} else {
		m.logger.Info("download completed",
			zap.String("file", sess.id),
			zap.String("path", result.FinalPath),
			zap.Int64("size", result.BytesWritten))
	}
}

func (m *Manager) logProgress(sess *session, state *domain.DownloadState) {
	if !m.logger.Core().Enabled(zap.DebugLevel) || !m.progress.AllowAt(sess.id, sess.now) {
		return
	}
	m.logger.Debug("download progress",
		zap.String("file", sess.id),
		zap.Int64("bytes", state.BytesTransferred),
		zap.String("total", vo.FormatSize(state.TotalBytes)),
		zap.String("speed", vo.FormatSpeed(state.Speed)),
		zap.String("eta", state.ETA.String()))
}
