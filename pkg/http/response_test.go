package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func record(t *testing.T, fn func(c echo.Context) error) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := fn(e.NewContext(req, rec)); err != nil {
		t.Fatalf("write response: %v", err)
	}
	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rec, env
}

func TestDataResponseKeepsTransportOK(t *testing.T) {
	rec, env := record(t, func(c echo.Context) error {
		return DataResponse(c, http.StatusNotFound, nil)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transport status = %d, want 200", rec.Code)
	}
	if env.Status != http.StatusNotFound || env.Message != "Not Found" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestAppErrorResponseWrapsErrorList(t *testing.T) {
	appErr := NotFoundErrorf("session %q not found", "tokyo")
	_, env := record(t, func(c echo.Context) error {
		return AppErrorResponse(c, fmt.Errorf("lookup: %w", appErr))
	})
	if env.Status != http.StatusNotFound {
		t.Fatalf("envelope status = %d, want 404", env.Status)
	}
	raw, _ := json.Marshal(env.Data)
	var errs []AppError
	if err := json.Unmarshal(raw, &errs); err != nil {
		t.Fatalf("data is not an error list: %v", err)
	}
	if len(errs) != 1 || errs[0].Code != "ERR_NOT_FOUND" {
		t.Fatalf("unexpected errors %+v", errs)
	}
}

func TestAppErrorResponseFallsBackTo500(t *testing.T) {
	_, env := record(t, func(c echo.Context) error {
		return AppErrorResponse(c, fmt.Errorf("plain failure"))
	})
	if env.Status != http.StatusInternalServerError {
		t.Fatalf("envelope status = %d, want 500", env.Status)
	}
	if env.Data != "Something went wrong" {
		t.Fatalf("unexpected data %v", env.Data)
	}
}

func TestReadAndValidateRequestReportsFields(t *testing.T) {
	type query struct {
		Session string `query:"session" validate:"required"`
		Date    string `query:"date" validate:"required,datetime=2006-01-02"`
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?date=March+1st", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	verr := ReadAndValidateRequest(c, &query{})
	errs, ok := verr.([]ValidationError)
	if !ok {
		t.Fatalf("expected []ValidationError, got %T", verr)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %+v", errs)
	}
	byField := map[string]ValidationError{}
	for _, ve := range errs {
		byField[ve.Field] = ve
	}
	if byField["Session"].Code != "ERR_REQUIRED" {
		t.Fatalf("unexpected session error %+v", byField["Session"])
	}
	date := byField["Date"]
	if date.Code != "ERR_DATETIME" || date.Params["layout"] != "2006-01-02" {
		t.Fatalf("unexpected date error %+v", date)
	}
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	type query struct {
		Interval string `query:"interval" default:"30m" validate:"oneof=1m 30m 1d"`
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var q query
	if verr := ReadAndValidateRequest(c, &q); verr != nil {
		t.Fatalf("unexpected validation error %+v", verr)
	}
	if q.Interval != "30m" {
		t.Fatalf("default not applied, got %q", q.Interval)
	}
}
