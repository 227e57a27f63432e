/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminserver

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/acronis/go-wireserver/log"
)

const (
	contentTypeAppJSON   = "application/json"
	contentTypeTextPlain = "text/plain; charset=utf-8"
)

type errorResponseData struct {
	Error string `json:"error"`
}

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

func respondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	respJSON, err := jsonMarshal(respData)
	if err != nil {
		logger.Error("error while marshaling json for response body", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", contentTypeAppJSON)
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

func respondError(rw http.ResponseWriter, statusCode int, message string, logger log.FieldLogger) {
	respondCodeAndJSON(rw, statusCode, errorResponseData{Error: message}, logger)
}

func respondText(rw http.ResponseWriter, text string, logger log.FieldLogger) {
	rw.Header().Set("Content-Type", contentTypeTextPlain)
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write([]byte(text)); err != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}
