// Package logx provides a small structured logging facade over zerolog.
//
// It exists so services can hold a Logger value whose sinks and level can be
// swapped at runtime (config hot reload) without re-plumbing loggers through
// every component. The zero value is a safe no-op logger.
package logx
