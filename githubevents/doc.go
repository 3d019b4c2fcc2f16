// Package githubevents maps raw GitHub webhook payloads onto canonical
// core.Event values. Parsing is a closed dispatch over the supported event
// types; adding a type means adding a strategy here, checked at compile
// time, not registering into a dynamic lookup.
package githubevents
