// Package security summarizes the security posture of an engine
// configuration. authd prints the report from "authd config check" and
// refuses to serve in production while high severity findings remain.
package security
