// Package courseware implements course content version control with
// purchase-time entitlement gating.
//
// Courses bundle versioned content items (videos and materials). While a
// course has no enrollments, admins edit the current version in place. Once
// anyone has purchased the course, every content edit forks a new immutable
// CourseVersion: the active items of the old version are replicated as new
// rows under the next version number and the requested change is applied to
// the copy. Learners keep the version number that was current when they
// purchased, so later edits never change what they see.
//
// The package is storage and transport agnostic. Persistence goes through
// the Repository interface (see repo/memory and repo/postgres) and blob
// bytes go through the BlobStore interface (see storage/memory, storage/fs
// and storage/s3). Construct a Service with functional options:
//
//	svc, err := courseware.New(
//	    courseware.WithRepository(memory.New()),
//	    courseware.WithBlobStore("memory", memorystorage.New()),
//	    courseware.WithDefaultBackend("memory"),
//	)
//
// Access decisions are returned as structured results, never errors: a
// learner who is not entitled to a video receives a denial state that the
// caller can turn into a purchase prompt.
package courseware
