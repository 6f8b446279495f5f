package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer"
)

// Form fields of the scoring request.
const (
	fieldSheet        = "omr_image"
	fieldKeyImage     = "answer_key_omr"
	fieldKeyText      = "answer_key_text"
	fieldNumQuestions = "num_questions"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
}

// AllowedFile reports whether name carries one of the accepted image
// extensions.
func AllowedFile(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return ext != "" && allowedExtensions[strings.ToLower(ext)]
}

// errBadUpload signals a validation failure carrying its message ID.
type errBadUpload struct {
	msgID string
}

func (e errBadUpload) Error() string { return e.msgID }

// scoreRequest is the validated form of a scoring request.
type scoreRequest struct {
	sheet        recognizer.Image
	keyImage     *recognizer.Image
	keyText      string
	numQuestions int
}

func (h *Handler) parseScoreRequest(w http.ResponseWriter, r *http.Request) (scoreRequest, error) {
	var req scoreRequest

	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, errBadUpload{"ErrUploadTooLarge"}
		}
		return req, errBadUpload{"ErrSheetRequired"}
	}

	sheet, err := readImage(r, fieldSheet)
	if err != nil {
		return req, err
	}
	if sheet == nil {
		return req, errBadUpload{"ErrSheetRequired"}
	}
	if !AllowedFile(sheet.Name) {
		return req, errBadUpload{"ErrSheetType"}
	}
	req.sheet = *sheet

	key, err := readImage(r, fieldKeyImage)
	if err != nil {
		return req, err
	}
	if key != nil && !AllowedFile(key.Name) {
		return req, errBadUpload{"ErrKeyType"}
	}
	req.keyImage = key
	req.keyText = r.FormValue(fieldKeyText)

	// The default applies only when the field is absent; a blank value is invalid.
	req.numQuestions = h.config.DefaultQuestions
	if vals, ok := r.MultipartForm.Value[fieldNumQuestions]; ok && len(vals) > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
		if err != nil || !omr.ValidQuestionCount(n) {
			return req, errBadUpload{"ErrNumQuestions"}
		}
		req.numQuestions = n
	}
	return req, nil
}

// readImage loads an uploaded file into memory. A missing part or one with an
// empty filename yields nil.
func readImage(r *http.Request, field string) (*recognizer.Image, error) {
	f, fh, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if fh.Filename == "" {
		return nil, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &recognizer.Image{
		Name:     fh.Filename,
		Data:     data,
		MIMEType: fh.Header.Get("Content-Type"),
	}, nil
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseScoreRequest(w, r)
	if err != nil {
		var bad errBadUpload
		if errors.As(err, &bad) {
			writeError(w, r, http.StatusBadRequest, bad.msgID, nil)
			return
		}
		slog.Error("read upload", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}

	n := req.numQuestions
	slog.Info("scoring request",
		"sheet", req.sheet.Name,
		"size", humanize.Bytes(uint64(len(req.sheet.Data))),
		"key_image", req.keyImage != nil,
		"key_text", strings.TrimSpace(req.keyText) != "",
		"num_questions", n,
	)

	ctx := r.Context()
	if h.config.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.DetectTimeout)
		defer cancel()
	}

	var student, key omr.Sheet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := recognizer.Recognize(gctx, h.detector, req.sheet, n)
		student = s
		return err
	})
	if req.keyImage != nil {
		g.Go(func() error {
			s, err := recognizer.Recognize(gctx, h.detector, *req.keyImage, n)
			key = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("recognition failed", "sheet", req.sheet.Name, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrRecognition", map[string]any{"Error": err.Error()})
		return
	}

	run := model.Run{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Mode:           model.ModeDetectionOnly,
		NumQuestions:   n,
		SheetName:      req.sheet.Name,
		KeySource:      model.KeySourceNone,
		Provider:       h.detector.Name(),
		StudentAnswers: student,
	}
	switch {
	case req.keyImage != nil:
		run.KeySource = model.KeySourceImage
	case strings.TrimSpace(req.keyText) != "":
		run.KeySource = model.KeySourceText
		key = omr.ParseKey(req.keyText, n)
		slog.Debug("parsed answer key", "format", omr.FormatOf(req.keyText, n))
	}
	if key != nil {
		sum, breakdown := omr.Score(student, key, n)
		run.Mode = model.ModeScored
		run.Summary = &sum
		run.Breakdown = breakdown
		run.CorrectAnswers = key
		slog.Info("sheet scored", "sheet", req.sheet.Name,
			"correct", sum.Correct, "incorrect", sum.Incorrect, "na", sum.NA)
	}

	resp := run.Response()
	resp.RunID = ""
	if h.store != nil {
		if err := h.store.SaveRun(run); err != nil {
			slog.Error("save run", "run_id", run.ID, "error", err)
		} else {
			resp.RunID = run.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
