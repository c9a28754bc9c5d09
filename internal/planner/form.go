package planner

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

// Multipart field names shared by HTTPClient and Handler.
const (
	fieldGoal            = "goal"
	fieldImageSize       = "image_size"
	fieldScreenshot      = "screenshot"
	fieldLearningProfile = "learning_profile"
	fieldAppContext      = "app_context"
	fieldSessionSummary  = "session_summary"
	fieldMarkerGrid      = "marker_grid"
	fieldCompletedSteps  = "completed_steps"
	fieldTotalSteps      = "total_steps"
	fieldCurrentStepID   = "current_step_id"
	fieldStepID          = "step_id"
	fieldInstruction     = "instruction"
	fieldTargetLabel     = "target_label"
	fieldCropRect        = "crop_rect"
	fieldCropImage       = "crop_image"
)

// form accumulates multipart fields. The first error sticks and is
// reported by encode.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) text(key, value string) *form {
	if f.err == nil {
		f.err = f.w.WriteField(key, value)
	}
	return f
}

// optional writes the field only when value is non-empty.
func (f *form) optional(key, value string) *form {
	if value == "" {
		return f
	}
	return f.text(key, value)
}

func (f *form) int(key string, value int) *form {
	return f.text(key, strconv.Itoa(value))
}

// json writes value as a JSON field. Nil pointers are skipped.
func (f *form) json(key string, value any, skip bool) *form {
	if f.err != nil || skip {
		return f
	}
	data, err := json.Marshal(value)
	if err != nil {
		f.err = fmt.Errorf("encode %s: %w", key, err)
		return f
	}
	return f.text(key, string(data))
}

func (f *form) png(key, filename string, data []byte) *form {
	if f.err != nil {
		return f
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, key, filename))
	h.Set("Content-Type", "image/png")
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	_, f.err = part.Write(data)
	return f
}

// encode finishes the form and returns its body and content type.
func (f *form) encode() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}
