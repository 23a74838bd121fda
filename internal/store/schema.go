package store

const (
	fkLeaderboardQuiz = "fk_leaderboard_quiz"
	fkLeaderboardUser = "fk_leaderboard_user"
)

// Statements are executed one by one and must be idempotent.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS quiz (
	quiz_id    SERIAL PRIMARY KEY,
	name       VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	`CREATE TABLE IF NOT EXISTS question (
	question_id    SERIAL PRIMARY KEY,
	question_text  TEXT NOT NULL,
	correct_answer VARCHAR NOT NULL,
	quiz_id        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT fk_question_quiz FOREIGN KEY (quiz_id) REFERENCES quiz (quiz_id) ON DELETE CASCADE
);`,
	`CREATE TABLE IF NOT EXISTS "user" (
	user_id    SERIAL PRIMARY KEY,
	username   VARCHAR NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_user_username UNIQUE (username)
);`,
	`CREATE TABLE IF NOT EXISTS leaderboard (
	leaderboard_id SERIAL PRIMARY KEY,
	score          INTEGER NOT NULL DEFAULT 0,
	quiz_id        INTEGER NOT NULL,
	user_id        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_leaderboard_quiz_user UNIQUE (quiz_id, user_id),
	CONSTRAINT fk_leaderboard_quiz FOREIGN KEY (quiz_id) REFERENCES quiz (quiz_id) ON DELETE CASCADE,
	CONSTRAINT fk_leaderboard_user FOREIGN KEY (user_id) REFERENCES "user" (user_id) ON DELETE CASCADE
);`,
	`CREATE INDEX IF NOT EXISTS idx_question_quiz ON question (quiz_id, question_id);`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_quiz_score ON leaderboard (quiz_id, score DESC);`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, indexes are declared inline.
var mysqlSchema = []string{
	"CREATE TABLE IF NOT EXISTS `quiz` (" + `
	quiz_id    INT AUTO_INCREMENT PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB;`,
	"CREATE TABLE IF NOT EXISTS `question` (" + `
	question_id    INT AUTO_INCREMENT PRIMARY KEY,
	question_text  TEXT NOT NULL,
	correct_answer VARCHAR(255) NOT NULL,
	quiz_id        INT NOT NULL,
	created_at     TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at     TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	INDEX idx_question_quiz (quiz_id, question_id),
	CONSTRAINT fk_question_quiz FOREIGN KEY (quiz_id) REFERENCES quiz (quiz_id) ON DELETE CASCADE
) ENGINE=InnoDB;`,
	"CREATE TABLE IF NOT EXISTS `user` (" + `
	user_id    INT AUTO_INCREMENT PRIMARY KEY,
	username   VARCHAR(64) NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	CONSTRAINT uq_user_username UNIQUE (username)
) ENGINE=InnoDB;`,
	"CREATE TABLE IF NOT EXISTS `leaderboard` (" + `
	leaderboard_id INT AUTO_INCREMENT PRIMARY KEY,
	score          INT NOT NULL DEFAULT 0,
	quiz_id        INT NOT NULL,
	user_id        INT NOT NULL,
	created_at     TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	updated_at     TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	INDEX idx_leaderboard_quiz_score (quiz_id, score),
	CONSTRAINT uq_leaderboard_quiz_user UNIQUE (quiz_id, user_id),
	CONSTRAINT fk_leaderboard_quiz FOREIGN KEY (quiz_id) REFERENCES quiz (quiz_id) ON DELETE CASCADE,
	CONSTRAINT fk_leaderboard_user FOREIGN KEY (user_id) REFERENCES ` + "`user`" + ` (user_id) ON DELETE CASCADE
) ENGINE=InnoDB;`,
}
