package internal

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultMediaRoom = "global"
	fallbackMime     = "application/octet-stream"
)

type uploadResponse struct {
	URL  string `json:"url"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// HandleUpload stores a multipart "file" field under a random name and
// records it in the media log for eviction.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	entry, response, err := s.receiveUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("file too large"))
			return
		}
		s.logger.Warn().Err(err).Msg("upload failed")
		writeError(w, statusFor(err), err)
		return
	}
	s.media.Append(entry)
	s.metrics.AddUpload(entry.Size)
	s.logger.Info().Str("path", entry.Path).Int64("size", entry.Size).Str("room", entry.Room).Msg("media stored")
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) receiveUpload(r *http.Request) (MediaEntry, uploadResponse, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return MediaEntry{}, uploadResponse{}, badInput("multipart body required: %v", err)
	}
	room := defaultMediaRoom
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return MediaEntry{}, uploadResponse{}, badInput("no file")
		}
		if err != nil {
			return MediaEntry{}, uploadResponse{}, unwrapBodyError(err)
		}
		switch part.FormName() {
		case "room":
			value, err := io.ReadAll(io.LimitReader(part, 256))
			_ = part.Close()
			if err != nil {
				return MediaEntry{}, uploadResponse{}, unwrapBodyError(err)
			}
			if trimmed := strings.TrimSpace(string(value)); trimmed != "" {
				room = trimmed
			}
		case "file":
			defer part.Close()
			contentType := part.Header.Get("Content-Type")
			if contentType == "" {
				contentType = fallbackMime
			}
			return s.storeMedia(part, contentType, room)
		default:
			_ = part.Close()
		}
	}
}

func (s *Server) storeMedia(body io.Reader, contentType, room string) (MediaEntry, uploadResponse, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return MediaEntry{}, uploadResponse{}, ioFailure("create upload directory", err)
	}
	filename := fmt.Sprintf("%s.%s", uuid.NewString(), extensionFor(contentType))
	fullPath := filepath.Join(s.uploadDir, filename)
	destFile, err := os.Create(fullPath)
	if err != nil {
		return MediaEntry{}, uploadResponse{}, ioFailure("create file", err)
	}
	written, copyErr := io.Copy(destFile, body)
	closeErr := destFile.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(fullPath)
		if copyErr != nil {
			return MediaEntry{}, uploadResponse{}, unwrapBodyError(copyErr)
		}
		return MediaEntry{}, uploadResponse{}, ioFailure("close file", closeErr)
	}
	entry := MediaEntry{Path: fullPath, Size: written, Room: room}
	response := uploadResponse{URL: uploadURLPrefix + filename, Mime: contentType, Size: written}
	return entry, response, nil
}

// extensionFor picks the stored file extension for a MIME type.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if strings.HasPrefix(mediaType, "audio/webm") {
		return "weba"
	}
	extensions, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(extensions) == 0 {
		return "bin"
	}
	return strings.TrimPrefix(extensions[0], ".")
}

// oversized bodies keep their MaxBytesError so the handler can answer 413
func unwrapBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return badInput("read upload: %v", err)
}
