// Package dataset builds a shard.Collection from a MovieLens style pair of
// CSV files: movies (movieId, title) and ratings (userId, movieId, rating).
//
// Sparse movies and inactive users are dropped before the ratings are
// pivoted into a movie × user matrix, one row per movie ordered by movie id
// and one column per user ordered by user id. Missing ratings are 0.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/dreamware/knnshard/internal/shard"
)

// Config locates the CSV files and sets the popularity thresholds.
type Config struct {
	MoviesPath      string `yaml:"movies"`
	RatingsPath     string `yaml:"ratings"`
	MinMovieRatings int    `yaml:"min_movie_ratings"`
	MinUserRatings  int    `yaml:"min_user_ratings"`
}

// DefaultConfig matches the thresholds the recommender was tuned with.
func DefaultConfig() Config {
	return Config{
		MoviesPath:      "data/movies.csv",
		RatingsPath:     "data/ratings.csv",
		MinMovieRatings: 50,
		MinUserRatings:  50,
	}
}

type rating struct {
	user  int
	movie int
	value float64
}

// Load reads both files and builds the collection.
func Load(cfg Config) (*shard.Collection, error) {
	mf, err := os.Open(cfg.MoviesPath)
	if err != nil {
		return nil, fmt.Errorf("open movies: %w", err)
	}
	defer mf.Close()

	rf, err := os.Open(cfg.RatingsPath)
	if err != nil {
		return nil, fmt.Errorf("open ratings: %w", err)
	}
	defer rf.Close()

	return Build(mf, rf, cfg.MinMovieRatings, cfg.MinUserRatings)
}

// Build is Load over arbitrary readers.
func Build(movies, ratings io.Reader, minMovieRatings, minUserRatings int) (*shard.Collection, error) {
	titles, err := readMovies(movies)
	if err != nil {
		return nil, err
	}
	rs, err := readRatings(ratings)
	if err != nil {
		return nil, err
	}

	// Both counts are taken over the full rating set.
	perMovie := make(map[int]int)
	perUser := make(map[int]int)
	for _, r := range rs {
		perMovie[r.movie]++
		perUser[r.user]++
	}

	matrix := make(map[int]map[int]float64)
	users := make(map[int]struct{})
	for _, r := range rs {
		if perMovie[r.movie] < minMovieRatings || perUser[r.user] < minUserRatings {
			continue
		}
		row, ok := matrix[r.movie]
		if !ok {
			row = make(map[int]float64)
			matrix[r.movie] = row
		}
		row[r.user] = r.value
		users[r.user] = struct{}{}
	}
	if len(matrix) == 0 {
		return nil, errors.New("dataset: no movie survives the rating thresholds")
	}

	movieIDs := sortedKeys(matrix)
	userIDs := sortedKeys(users)
	column := make(map[int]int, len(userIDs))
	for i, u := range userIDs {
		column[u] = i
	}

	items := make([]shard.Item, 0, len(movieIDs))
	for _, id := range movieIDs {
		title, ok := titles[id]
		if !ok {
			return nil, fmt.Errorf("dataset: movie %d has ratings but no title", id)
		}
		vec := make([]float64, len(userIDs))
		for u, v := range matrix[id] {
			vec[column[u]] = v
		}
		items = append(items, shard.Item{ID: id, Label: title, Vector: vec})
	}
	return shard.NewCollection(items)
}

func readMovies(r io.Reader) (map[int]string, error) {
	rows, cols, err := readCSV(r, "movieId", "title")
	if err != nil {
		return nil, fmt.Errorf("movies: %w", err)
	}
	titles := make(map[int]string, len(rows))
	for i, row := range rows {
		id, err := strconv.Atoi(row[cols[0]])
		if err != nil {
			return nil, fmt.Errorf("movies line %d: movieId: %w", i+2, err)
		}
		titles[id] = row[cols[1]]
	}
	return titles, nil
}

func readRatings(r io.Reader) ([]rating, error) {
	rows, cols, err := readCSV(r, "userId", "movieId", "rating")
	if err != nil {
		return nil, fmt.Errorf("ratings: %w", err)
	}
	out := make([]rating, 0, len(rows))
	for i, row := range rows {
		var rt rating
		if rt.user, err = strconv.Atoi(row[cols[0]]); err != nil {
			return nil, fmt.Errorf("ratings line %d: userId: %w", i+2, err)
		}
		if rt.movie, err = strconv.Atoi(row[cols[1]]); err != nil {
			return nil, fmt.Errorf("ratings line %d: movieId: %w", i+2, err)
		}
		if rt.value, err = strconv.ParseFloat(row[cols[2]], 64); err != nil {
			return nil, fmt.Errorf("ratings line %d: rating: %w", i+2, err)
		}
		out = append(out, rt)
	}
	return out, nil
}

// readCSV reads every record and returns the positions of the named columns.
func readCSV(r io.Reader, names ...string) ([][]string, []int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]int, len(names))
	for i, name := range names {
		cols[i] = -1
		for j, h := range header {
			if h == name {
				cols[i] = j
				break
			}
		}
		if cols[i] < 0 {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	for i, row := range rows {
		for _, c := range cols {
			if c >= len(row) {
				return nil, nil, fmt.Errorf("line %d: too few fields", i+2)
			}
		}
	}
	return rows, cols, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
