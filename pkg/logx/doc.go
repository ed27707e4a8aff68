// Package logx configures planbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Loggers handed out by the Service stay live across Apply() calls, so a
// config reload changes sinks/levels without re-wiring components.
package logx
