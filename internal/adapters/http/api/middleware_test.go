package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler wrapped in the metrics middleware", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}, "teapot")

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))

		Convey("Then the status and body pass through", func() {
			So(w.Code, ShouldEqual, http.StatusTeapot)
			So(w.Body.String(), ShouldEqual, "short and stout")
		})
	})
}

func TestGetErrorType(t *testing.T) {
	Convey("Status codes map to error types", t, func() {
		So(getErrorType(http.StatusBadGateway), ShouldEqual, "upstream_error")
		So(getErrorType(http.StatusInternalServerError), ShouldEqual, "server_error")
		So(getErrorType(http.StatusConflict), ShouldEqual, "conflict")
		So(getErrorType(http.StatusGone), ShouldEqual, "not_found")
		So(getErrorType(http.StatusBadRequest), ShouldEqual, "client_error")
		So(getErrorType(http.StatusOK), ShouldEqual, "unknown")
	})
}

func TestCreateRequest_Validate(t *testing.T) {
	Convey("Given a create request", t, func() {
		Convey("When the owner is blank", func() {
			err := createRequest{Owner: "  "}.validate()
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
		})

		Convey("When there are too many ids", func() {
			err := createRequest{Owner: "w", AssetIDs: make([]string, maxAssetIDs+1)}.validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "at most")
		})

		Convey("When it is well formed", func() {
			So(createRequest{Owner: "w", AssetIDs: []string{"a"}}.validate(), ShouldBeNil)
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Context errors are unavailable", t, func() {
		status, code := classify(context.DeadlineExceeded)
		So(status, ShouldEqual, http.StatusServiceUnavailable)
		So(code, ShouldEqual, "unavailable")
	})
}
