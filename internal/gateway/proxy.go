package gateway

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"strings"

	"github.com/nao1215/shopgate/pkg/config"
	"go.uber.org/zap"
)

// route はパス接頭辞と転送先の1組。
type route struct {
	prefix      string
	stripPrefix bool
	upstream    *url.URL
	proxy       *httputil.ReverseProxy
}

// routeTable はパス接頭辞で転送先を引く。最長一致を優先する。
type routeTable struct {
	routes []*route
}

// newRouteTable は設定から転送表を作る。
func newRouteTable(cfgs []config.RouteConfig, logger *zap.Logger, metrics *Metrics) (*routeTable, error) {
	t := &routeTable{}
	for _, rc := range cfgs {
		target, err := url.Parse(rc.Upstream)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("転送先URLが不正です: %s -> %q", rc.Prefix, rc.Upstream)
		}
		prefix := strings.TrimSuffix(rc.Prefix, "/")
		if prefix == "" {
			prefix = "/"
		}

		rt := &route{prefix: prefix, stripPrefix: rc.StripPrefix, upstream: target}
		rt.proxy = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				if rt.stripPrefix {
					pr.Out.URL.Path = rt.strip(pr.In.URL.Path)
					pr.Out.URL.RawPath = ""
				}
				pr.SetURL(target)
				pr.SetXForwarded()
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				metrics.incUpstreamError(rt.prefix)
				logger.Error("転送先との通信に失敗しました",
					zap.String("route", rt.prefix),
					zap.String("upstream", target.String()),
					zap.String("path", r.URL.Path),
					zap.String("request_id", r.Header.Get("X-Request-ID")),
					zap.Error(err),
				)
				writeJSONError(w, http.StatusBadGateway, "内部サービスとの通信に失敗しました")
			},
		}
		t.routes = append(t.routes, rt)
	}

	slices.SortStableFunc(t.routes, func(a, b *route) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})
	return t, nil
}

// match は path に一致する最長の接頭辞を持つ転送先を返す。
// 接頭辞はパスセグメント単位で一致させる。
func (t *routeTable) match(path string) *route {
	for _, rt := range t.routes {
		if rt.matches(path) {
			return rt
		}
	}
	return nil
}

func (r *route) matches(path string) bool {
	if r.prefix == "/" {
		return true
	}
	return path == r.prefix || strings.HasPrefix(path, r.prefix+"/")
}

func (r *route) strip(path string) string {
	if r.prefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, r.prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// writeJSONError はgin.Context外から {"error": msg} を書き込む。
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
