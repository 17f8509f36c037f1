// Package cms provides the client for the CMS admin endpoint that runs
// asynchronous bulk preview/publish operations. SubmitBulk returns a
// server-issued job handle; PollJob fetches per-path result snapshots until
// the job reports a terminal state.
package cms
