// Package logging constructs the process-wide zap logger. The teacher used
// the standard library's log package throughout; the rest of the pack
// (dashdice, ghostdraft) reaches for go.uber.org/zap for structured
// service logging, which is what every other ambient-stack component in
// this module (registry, scheduler, matchcache) expects to receive.
package logging

import "go.uber.org/zap"

// New builds a production zap logger, or a development one with a nicer
// console encoder when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
