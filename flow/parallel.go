package flow

import "sync"

// forEach runs body(i) for every i in [0, length), using at most workers
// goroutines. With one worker it is a plain loop.
func forEach(length, workers int, body func(i int)) {
	if length <= 0 {
		return
	}
	if workers <= 1 || length == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}
	if workers > length {
		workers = length
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}
