package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
	"github.com/kirillkom/content-analyzer/internal/mediatype"
)

const (
	uploadField = "file"
	// multipartOverhead leaves room for boundaries and part headers around the file.
	multipartOverhead = 1 << 20
	sniffLen          = 512
)

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.WrapError(domain.ErrFileTooLarge, "upload", fmt.Errorf("limit is %d bytes", rt.maxUploadBytes)))
			return
		}
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	if header.Size > rt.maxUploadBytes {
		writeError(w, domain.WrapError(domain.ErrFileTooLarge, "upload", fmt.Errorf("limit is %d bytes", rt.maxUploadBytes)))
		return
	}

	mimeType, err := resolveMimeType(header.Header.Get("Content-Type"), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := rt.submitter.Submit(r.Context(), header.Filename, mimeType, file)
	if err != nil {
		writeError(w, err)
		return
	}
	noteSubmitted(r.Context(), job)
	if rt.metrics != nil {
		rt.metrics.RecordUpload(job.Source.Size)
	}

	w.Header().Set("Location", "/job/"+job.ID)
	writeJSON(w, http.StatusAccepted, uploadResponse{JobID: job.ID})
}

// resolveMimeType settles the upload's type from the declared header, the filename and
// the content itself. A declared type that the content contradicts is rejected.
func resolveMimeType(declared, filename string, file multipart.File) (string, error) {
	sniffed, err := sniffMimeType(file)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload", err)
	}

	claimed := mediatype.Normalize(declared)
	if claimed == "" || claimed == "application/octet-stream" {
		claimed = mediatype.ForExtension(filename)
	}

	switch {
	case claimed == "" && sniffed == "":
		return "", domain.WrapError(domain.ErrUnsupportedMedia, "upload", fmt.Errorf("unrecognized file %q", filename))
	case claimed == "":
		claimed = sniffed
	case !mediatype.IsSupported(claimed):
		return "", domain.WrapError(domain.ErrUnsupportedMedia, "upload", fmt.Errorf("mime type %q", declared))
	case sniffed != claimed:
		return "", domain.WrapError(domain.ErrUnsupportedMedia, "upload", fmt.Errorf("content does not match declared type %q", claimed))
	}

	if !mediatype.IsSupported(claimed) {
		return "", domain.WrapError(domain.ErrUnsupportedMedia, "upload", fmt.Errorf("mime type %q", claimed))
	}
	return claimed, nil
}

// sniffMimeType returns the detected supported type or "" and rewinds file.
func sniffMimeType(file multipart.File) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	detected := mediatype.Normalize(http.DetectContentType(head))
	var confirm func(io.Reader) error
	switch detected {
	case "application/pdf", "image/png", "image/jpeg", "image/gif":
		return detected, nil
	case "image/bmp":
		confirm = func(r io.Reader) error { _, err := bmp.DecodeConfig(r); return err }
	case "image/webp":
		confirm = func(r io.Reader) error { _, err := webp.DecodeConfig(r); return err }
	default:
		if !bytes.HasPrefix(head, []byte("II*\x00")) && !bytes.HasPrefix(head, []byte("MM\x00*")) {
			return "", nil
		}
		detected = "image/tiff"
		confirm = func(r io.Reader) error { _, err := tiff.DecodeConfig(r); return err }
	}

	// Decoders need the whole file for formats whose header points elsewhere.
	confirmErr := confirm(file)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if confirmErr != nil {
		return "", nil
	}
	return detected, nil
}
