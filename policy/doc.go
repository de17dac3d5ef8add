// Package policy provides optional declarative rules applied on top of a
// running action loop, for example to require human approval for selected
// tasks or to block them altogether.
package policy
