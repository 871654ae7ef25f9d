package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type validatedRequest struct {
	Action string `json:"action" binding:"omitempty,oneof=add remove"`
	Name   string `json:"name"   binding:"notblank"`
	ID     string `json:"id"     binding:"required_if=Action remove,omitempty,uuid"`
	Hour   *int   `json:"hour"   binding:"omitempty,min=0,max=23"`
}

var validatedMessages = map[string]string{
	"name":           "Name is required",
	"id.required_if": "ID is required",
	"id.uuid":        "Invalid ID",
	"hour":           "Hour must be 0-23",
}

func validatedEngine() *gin.Engine {
	r := testEngine()
	r.POST("/things", func(c *gin.Context) {
		var req validatedRequest
		if err := BindJSON(c, &req); err != nil {
			Error(c, http.StatusBadRequest, ValidationMessage(err, validatedMessages, "Invalid request body"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}

func TestBindJSONValidation(t *testing.T) {
	r := validatedEngine()

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"empty body", "", http.StatusBadRequest, "Name is required"},
		{"blank name", `{"name":"   "}`, http.StatusBadRequest, "Name is required"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "Invalid request body"},
		{"remove without id", `{"action":"remove","name":"a"}`, http.StatusBadRequest, "ID is required"},
		{"remove with bad id", `{"action":"remove","name":"a","id":"nope"}`, http.StatusBadRequest, "Invalid ID"},
		{"hour out of range", `{"name":"a","hour":24}`, http.StatusBadRequest, "Hour must be 0-23"},
		{"unknown action", `{"action":"rename","name":"a"}`, http.StatusBadRequest, "Invalid request body"},
		{"hour zero", `{"name":"a","hour":0}`, http.StatusOK, ""},
		{"valid remove", `{"action":"remove","name":"a","id":"8c7f6a3e-1f0b-4d55-9d1a-2b3c4d5e6f70"}`, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, `{"error":"`+tt.want+`"}`, w.Body.String())
			}
		})
	}
}
