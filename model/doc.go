// Package model defines actions and aliases, the registrable units of the
// engine. Task declarations live in graph, parameters in param and the
// pipeline location stack in pipeline.
package model
