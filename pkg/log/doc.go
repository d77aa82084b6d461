// Package log provides named loggers for the catalog service on top of
// zerolog.
//
// Every component grabs a logger once and keeps it:
//
//	l := log.ForService("search")
//	l.Infof("query for %d orgs", len(orgs))
//	l.Debugf("compiled: %s", body) // only when debug is on for "search"
//
// Lines are JSON objects with level, time, service and message fields. The
// console format (SetConsole) is meant for local runs.
//
// Debug output can be enabled globally (SetGlobalDebug), per logger
// (EnableDebugFor) or by lowering the level (SetLevel("debug")). The level
// can be changed at runtime; serve does so when the configuration file is
// edited.
//
// Tests redirect output with SetOutput and a bytes.Buffer.
package log
