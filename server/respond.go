// Package server exposes the time-addressable media store's REST surface
// over go-chi, translating cmn.TError into the documented HTTP status and
// JSON error body at the one boundary that needs to know about HTTP at all.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package server

import (
	"io"
	"net/http"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/cmn/cos"
	"github.com/bbc/tams-core/cmn/nlog"
)

type errBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	FieldPath string `json:"field_path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := cos.Marshal(v)
	if err != nil {
		nlog.Errorf("server: marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func writeErr(w http.ResponseWriter, err error) {
	te := cmn.AsTError(err)
	if te.Audit {
		nlog.Errorf("server: %s", te.Error())
	}
	writeJSON(w, te.HTTPStatus(), errBody{
		Code:      string(te.Code),
		Message:   te.Message,
		FieldPath: te.FieldPath,
	})
}

func readJSON(r *http.Request, v any) *cmn.TError {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return cmn.NewBadRequest("failed to read request body: " + err.Error())
	}
	if err := cos.Unmarshal(b, v); err != nil {
		return cmn.NewValidationErr("", "malformed JSON body: "+err.Error())
	}
	return nil
}
