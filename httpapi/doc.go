// Package httpapi exposes the publisher registry and the subscriber receiver
// over HTTP. Each surface is an httprouter.Router rooted at /hooks; mount them
// under distinct prefixes when both run in one process.
package httpapi
