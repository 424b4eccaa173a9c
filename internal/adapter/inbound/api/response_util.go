package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
)

// Encoders and their buffers are pooled together; responses are encoded fully
// before any header is written so an encoding failure never truncates a
// response mid-body.
type pooledEncoder struct {
	buf     *bytes.Buffer
	encoder *json.Encoder
}

var encoderPool = sync.Pool{
	New: func() interface{} {
		buf := bytes.NewBuffer(make([]byte, 0, 512))
		return &pooledEncoder{
			buf:     buf,
			encoder: json.NewEncoder(buf),
		}
	},
}

// WriteJSON encodes data as JSON and writes it with the given status code.
// A zero status code defaults to 200.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	pe := encoderPool.Get().(*pooledEncoder)
	defer func() {
		pe.buf.Reset()
		encoderPool.Put(pe)
	}()

	if err := pe.encoder.Encode(data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_, err := w.Write(pe.buf.Bytes())
	return err
}
