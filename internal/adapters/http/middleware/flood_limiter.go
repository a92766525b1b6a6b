// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"net/http"
	"time"

	sw "github.com/RussellLuo/slidingwindow"
)

const floodMessage = "too many requests, slow down"

// NewFloodLimiter limita o total de requisições por segundo do processo com
// uma janela deslizante local. É um guarda de inundação no adaptador HTTP,
// anterior e independente do rate limit por remetente do pipeline.
func NewFloodLimiter(perSecond int64) func(http.Handler) http.Handler {
	lim, _ := sw.NewLimiter(time.Second, perSecond, func() (sw.Window, sw.StopFunc) {
		return sw.NewLocalWindow()
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if lim != nil && !lim.Allow() {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(floodMessage))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
