package http

import (
	nethttp "net/http"
)

func pageSettingsHandler(settings pageSettings) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"data": settings,
		})
	}
}
