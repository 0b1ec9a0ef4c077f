package signal

import "github.com/dkeye/tileworld/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.TypePong, struct{}{})
}
