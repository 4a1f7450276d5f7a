package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
)

// maxMultipartMemory bounds multipart parsing; the body itself is already
// capped by MaxBytesReader.
const maxMultipartMemory = 1 << 20

// messageFields lists the wire names of the three Message fields.
var messageFields = [...]string{"room", "username", "message"}

// jsonMessage uses pointers so absent fields can be told apart from empty ones.
type jsonMessage struct {
	Room     *string `json:"room"`
	Username *string `json:"username"`
	Message  *string `json:"message"`
}

// bindMessage decodes a Message from a form-encoded, multipart or JSON body.
// Every field must be present; empty values are allowed. Length limits are
// checked separately by Message.Validate.
func bindMessage(r *http.Request) (Message, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return Message{}, fmt.Errorf("%w: expected application/x-www-form-urlencoded, multipart/form-data or application/json", ErrMissingContentType)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return Message{}, bodyError(err)
		}
		return messageFromValues(r.PostForm)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return Message{}, bodyError(err)
		}
		return messageFromValues(r.PostForm)

	case "application/json":
		var in jsonMessage
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&in); err != nil {
			return Message{}, bodyError(err)
		}
		return messageFromJSON(in)

	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
}

// bodyError keeps *http.MaxBytesError visible to statusFor and classifies
// everything else as a malformed body.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedBody, err)
}

func messageFromValues(values url.Values) (Message, error) {
	var missing ValidationErrors
	get := func(name string) string {
		v, ok := values[name]
		if !ok || len(v) == 0 {
			missing = append(missing, FieldError{Field: name, Message: "is required"})
			return ""
		}
		return v[0]
	}

	msg := Message{
		Room:     get(messageFields[0]),
		Username: get(messageFields[1]),
		Message:  get(messageFields[2]),
	}
	if len(missing) > 0 {
		return Message{}, missing
	}
	return msg, nil
}

func messageFromJSON(in jsonMessage) (Message, error) {
	var missing ValidationErrors
	for i, p := range []*string{in.Room, in.Username, in.Message} {
		if p == nil {
			missing = append(missing, FieldError{Field: messageFields[i], Message: "is required"})
		}
	}
	if len(missing) > 0 {
		return Message{}, missing
	}
	return Message{Room: *in.Room, Username: *in.Username, Message: *in.Message}, nil
}
