package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingFile            = errors.New("no file part in the request")
	ErrEmptyFile              = errors.New("no selected file")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrRequestTooLarge        = errors.New("request body too large")
	ErrInvalidRequest         = errors.New("invalid request")
)

// uploadFields are the multipart field names accepted for the image, in
// lookup order.
var uploadFields = []string{"image", "file"}

const defaultUploadName = "upload"

type UploadedImage struct {
	Data        []byte
	Filename    string
	ContentType string
}

type jsonUpload struct {
	Image    string `json:"image" validate:"required"`
	Filename string `json:"filename" validate:"omitempty,max=255"`
}

var validate = validator.New()

// readUpload extracts the image from a multipart form, a JSON body carrying
// base64 data, or a raw image body.
func readUpload(r *http.Request, maxBytes int64) (*UploadedImage, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType := ""
	if contentType != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
		}
	}

	switch {
	case mediaType == "multipart/form-data":
		return readMultipart(r, maxBytes)
	case mediaType == "application/json":
		return readJSON(r.Body, r.Header.Get("X-Filename"))
	case strings.HasPrefix(mediaType, "image/"), mediaType == "application/octet-stream", mediaType == "":
		return readRaw(r, mediaType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
}

func readMultipart(r *http.Request, maxBytes int64) (*UploadedImage, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, bodyError(err)
	}

	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range uploadFields {
		file, header, err = r.FormFile(field)
		if err == nil {
			break
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, bodyError(err)
		}
	}
	if file == nil {
		// a part sent with an empty filename is parsed as a plain value
		for _, field := range uploadFields {
			if _, ok := r.MultipartForm.Value[field]; ok {
				return nil, ErrEmptyFile
			}
		}
		return nil, ErrMissingFile
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, ErrEmptyFile
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, bodyError(err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	partType := header.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(partType)
	switch {
	case strings.HasPrefix(mediaType, "image/"):
	case mediaType == "application/json":
		return readJSON(bytes.NewReader(data), header.Filename)
	case mediaType == "" || mediaType == "application/octet-stream":
		sniffed, ok := sniffImageType(data)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, sniffed)
		}
		mediaType = sniffed
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}

	return &UploadedImage{
		Data:        data,
		Filename:    header.Filename,
		ContentType: mediaType,
	}, nil
}

func readJSON(body io.Reader, fallbackName string) (*UploadedImage, error) {
	var req jsonUpload
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingFile
		}
		return nil, bodyError(err)
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Image" {
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", ErrInvalidRequest)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	name := req.Filename
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = defaultUploadName
	}

	contentType, _ := sniffImageType(data)
	return &UploadedImage{
		Data:        data,
		Filename:    name,
		ContentType: contentType,
	}, nil
}

func readRaw(r *http.Request, mediaType string) (*UploadedImage, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	if !strings.HasPrefix(mediaType, "image/") {
		sniffed, ok := sniffImageType(data)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, sniffed)
		}
		mediaType = sniffed
	}

	name := r.Header.Get("X-Filename")
	if name == "" {
		name = defaultUploadName
	}

	return &UploadedImage{
		Data:        data,
		Filename:    name,
		ContentType: mediaType,
	}, nil
}

// sniffImageType names the image format of data using the registered
// decoders, falling back to net/http content sniffing.
func sniffImageType(data []byte) (string, bool) {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format, true
	}
	detected := http.DetectContentType(data)
	return detected, strings.HasPrefix(detected, "image/")
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return ErrRequestTooLarge
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}
