// Package crawler holds the crawl orchestration domain model: targets,
// candidates, task states, the ports implemented by stores, page sources,
// notifiers, gates and caches, and the failure taxonomy shared by the
// worker and scheduler.
package crawler
