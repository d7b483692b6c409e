/*
Package clients implements the worker side of the gateway protocol.

WorkerClient signs requests with the worker's manifest key and covers the
calls a worker makes against a gateway:

  - RegisterManifest / DeleteManifest - manage the worker's manifest
  - GatewayPublicKey - fetch the key forwarded interactions are signed with
  - DiscordAPI - call Discord through the permission-checked proxy

VerifyGatewayRequest is used by a worker's interaction endpoint to check
that a delivery came from the gateway, and returns the provenance token
to present on follow-up Discord calls.

# Example Usage

	client := clients.NewWorkerClient("https://nexus.example.com", "svc1", cryptoutils.Ed25519, privateKey)
	if _, err := client.RegisterManifest(ctx, manifest); err != nil {
	    return err
	}

	token, err := clients.VerifyGatewayRequest(gatewayKey, r.Header, body)
	if err != nil {
	    http.Error(w, "unauthorized", http.StatusUnauthorized)
	    return
	}
	resp, err := client.DiscordAPI(ctx, http.MethodPost, "/channels/1/messages", msg, token)
*/
package clients
