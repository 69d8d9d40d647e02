/*
Package workers sizes the indexer's probe pool.

Pool sizes follow GOMAXPROCS rather than runtime.NumCPU, so a container with
a CPU limit gets a pool that matches its quota instead of the host's core
count. Probing is I/O-bound (a header read per file), so ForIO allows two
workers per available CPU:

	g.SetLimit(workers.ForIO(8))

Operators can pin the size with the INDEX_WORKERS environment variable. The
override still respects the caller's limit:

	env:
	- name: INDEX_WORKERS
	  value: "2"
*/
package workers
