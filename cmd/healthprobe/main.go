// healthprobe is a lean liveness/readiness prober for deploy scripts
// and container health checks. It exits 0 when the target endpoint
// answers 200, non-zero otherwise.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	target := flag.String("target", "http://127.0.0.1:8080", "base URL of the server to probe")
	path := flag.String("path", "/readyz", "probe path (/healthz or /readyz)")
	timeout := flag.Duration("timeout", 3*time.Second, "probe timeout")
	flag.Parse()

	c := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(*target + *path)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.DoTimeout(req, res, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if res.StatusCode() != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "probe unhealthy: %d %s\n", res.StatusCode(), res.Body())
		os.Exit(1)
	}
	fmt.Printf("ok: %s\n", res.Body())
}
