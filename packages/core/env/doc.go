// Package env handles plan variables and their interpolation.
//
// It provides functionality for:
//   - Loading dotenv files (.env, .env.local) with godotenv
//   - Selecting a named environment declared by a plan
//   - Variable interpolation using {{variable}} syntax
//   - Built-in function evaluation (uuid, timestamp, random, etc.)
//   - Captures published by earlier tests in the same run
package env
