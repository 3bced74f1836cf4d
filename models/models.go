package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - Message, Thread from message.go

// Database schema overview:
// 1. users - Parents and agents, with profile, household and preference fields
// 2. refresh_tokens - Hashed refresh tokens backing the session cookies
// 3. messages - Directed private messages; a pair of users forms a thread
