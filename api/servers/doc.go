/*
Package servers runs the gateway HTTP listener and its metrics listener.

A Server mounts every handler package passed to New (interactions,
manifests, the Discord proxy and the dashboard API) behind the request
logging middleware, plus the operational endpoints:

	GET /livez     liveness probe
	GET /readyz    readiness probe, 503 while draining
	GET /drain     mark the instance not ready
	GET /undrain   mark it ready again
	/debug/*       pprof, when EnablePprof is set

Prometheus metrics are served from MetricsAddr when it is non-empty.

# Example Usage

	srv, err := servers.New(cfg,
	    interactionhandler.NewHandler(transfer, discordKey, log),
	    manifesthandler.NewHandler(manifests, keyring, log),
	)
	if err != nil {
	    return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package servers
