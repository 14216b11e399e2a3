package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	contracts "taskpulse/contracts/mq"
)

// InsertEnvelopeInTx stages an envelope for publication inside the
// caller's transaction. The task CRUD API calls this right before commit;
// the dispatcher relays the row to the bus afterwards. This is what bounds
// the failure mode to "state changed, event not yet visible".
func InsertEnvelopeInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	env contracts.Envelope,
) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	event := &Event{
		EventID:    env.EventID,
		RoutingKey: env.EventType,
		Payload:    payload,
		Status:     "pending",
	}

	return repo.InsertEvent(ctx, tx, event)
}
