package queue

import (
	"net/http"

	"github.com/maheshrc27/physiopost/pkg/webhooksig"
)

// Relay turns due tasks into signed webhook calls. It runs inside the asynq
// worker, so a delivery survives restarts of the web process.
type Relay struct {
	signer     *webhooksig.Signer
	webhookURL string
	httpClient *http.Client
}

func NewRelay(signer *webhooksig.Signer, webhookURL string, httpClient *http.Client) *Relay {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Relay{
		signer:     signer,
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

const DeliveryIDHeader = "Delivery-Id"
