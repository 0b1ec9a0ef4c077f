package protocol

import (
	"github.com/invopop/jsonschema"
)

// Catalog lists every message payload by its envelope type.
type Catalog struct {
	SelfState    SelfState    `json:"self-state"`
	OccupantList OccupantList `json:"occupant-list"`
	PlayerJoined PlayerJoined `json:"player-joined"`
	PlayerMoved  PlayerMoved  `json:"player-moved"`
	PlayerLeft   PlayerLeft   `json:"player-left"`
	MapReset     MapReset     `json:"map-reset"`
	Error        ErrorPayload `json:"error"`
	Move         Move         `json:"move"`
	ChangeMap    ChangeMap    `json:"change-map"`
}

// Schema describes the socket protocol for client authors.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(Catalog))
	schema.Title = "Tileworld signal protocol"
	schema.Description = "Payloads carried in {type, payload} envelopes on /api/ws"
	return schema
}
